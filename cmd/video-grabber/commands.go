package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"

	"github.com/alanbriolat/video-grabber"
	"github.com/alanbriolat/video-grabber/backend"
	"github.com/alanbriolat/video-grabber/generic"
	"github.com/alanbriolat/video-grabber/internal/session"
	"github.com/alanbriolat/video-grabber/transfer"
)

type navigatorFactory func(config video_grabber.Config, out io.Writer) (session.Navigator, error)

// openSession starts a session against the configured backend, with an observer logging its events. The returned
// func closes the session and waits for the observer to finish.
func openSession(ctx context.Context, c *cli.Context, newNavigator navigatorFactory) (*session.Session, func(), error) {
	logger := video_grabber.Logger(ctx).Sugar()
	config, err := configFromContext(c)
	if err != nil {
		return nil, nil, err
	}
	client, err := backend.NewClient(config.BackendURL)
	if err != nil {
		return nil, nil, err
	}
	navigator, err := newNavigator(config, c.App.Writer)
	if err != nil {
		return nil, nil, err
	}
	ses, err := session.New(ctx, session.Config{
		Backend:        client,
		Navigator:      navigator,
		RequestTimeout: config.RequestTimeout,
	})
	if err != nil {
		return nil, nil, err
	}
	events, err := ses.Subscribe()
	if err != nil {
		ses.Close()
		return nil, nil, err
	}
	logger.Debugw("session opened", "backend", config.BackendURL, "timeout", timeoutOrNone(config.RequestTimeout))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		observe(logger, events.Receive())
	}()
	return ses, func() {
		ses.Close()
		wg.Wait()
	}, nil
}

func saveNavigator(config video_grabber.Config, _ io.Writer) (session.Navigator, error) {
	var bar *progressbar.ProgressBar
	return transfer.NewSaverBuilder().
		WithTargetDir(config.TargetDir).
		WithProgressCallback(func(downloaded int64, expected int64) {
			// Each transfer starts by reporting its expected size
			if bar == nil || downloaded == 0 {
				bar = progressbar.DefaultBytes(expected, "downloading")
			}
			generic.Unwrap_(bar.Set64(downloaded))
		}).
		Build()
}

func printNavigator(_ video_grabber.Config, out io.Writer) (session.Navigator, error) {
	return session.NavigatorFunc(func(ctx context.Context, link string) error {
		_, err := fmt.Fprintln(out, link)
		return err
	}), nil
}

func singleURL(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("expected exactly one URL, got %d arguments", c.NArg())
	}
	return c.Args().First(), nil
}

func fetch(ctx context.Context, ses *session.Session, query string) (video_grabber.VideoMetadata, error) {
	if _, err := ses.SetQuery(query); err != nil {
		return video_grabber.VideoMetadata{}, err
	}
	return ses.FetchMetadata(ctx)
}

func runInfo(ctx context.Context, c *cli.Context) error {
	query, err := singleURL(c)
	if err != nil {
		return err
	}
	ses, closeSession, err := openSession(ctx, c, printNavigator)
	if err != nil {
		return err
	}
	defer closeSession()

	metadata, err := fetch(ctx, ses, query)
	if err != nil {
		return err
	}
	return printMetadata(c.App.Writer, metadata)
}

func runDownload(ctx context.Context, c *cli.Context) error {
	logger := video_grabber.Logger(ctx).Sugar()
	query, err := singleURL(c)
	if err != nil {
		return err
	}
	if c.IsSet("quality") && c.IsSet("itag") {
		return errors.New("--quality and --itag are mutually exclusive")
	}
	newNavigator := saveNavigator
	if c.Bool("print-link") {
		newNavigator = printNavigator
	}
	ses, closeSession, err := openSession(ctx, c, newNavigator)
	if err != nil {
		return err
	}
	defer closeSession()

	var itag video_grabber.Identifier
	if c.IsSet("itag") {
		if _, err := ses.SetQuery(query); err != nil {
			return err
		}
		itag = parseIdentifier(c.String("itag"))
	} else {
		metadata, err := fetch(ctx, ses, query)
		if err != nil {
			return err
		}
		format, err := selectFormat(metadata, c.String("quality"))
		if err != nil {
			return err
		}
		logger.Infof("Selected %s (%s)", format.Quality, format.Size)
		itag = format.Itag
	}

	if _, err := ses.Download(ctx, itag); err != nil {
		return err
	}
	logger.Info("Download complete!")
	return nil
}

// prompter reads lines from the user without blocking cancellation.
type prompter struct {
	out   io.Writer
	lines <-chan string
	done  chan struct{}
	err   *error
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	lines := make(chan string)
	done := make(chan struct{})
	var scanErr error
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case <-done:
				return
			default:
			}
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		scanErr = scanner.Err()
	}()
	return &prompter{out: out, lines: lines, done: done, err: &scanErr}
}

// Close stops delivering lines. A read already blocked on the input stays blocked until it returns.
func (p *prompter) Close() {
	close(p.done)
}

// ask returns io.EOF once input runs out.
func (p *prompter) ask(ctx context.Context, prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	select {
	case line, ok := <-p.lines:
		if !ok {
			if *p.err != nil {
				return "", *p.err
			}
			return "", io.EOF
		}
		return strings.TrimSpace(line), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func runInteractive(ctx context.Context, c *cli.Context) error {
	ses, closeSession, err := openSession(ctx, c, saveNavigator)
	if err != nil {
		return err
	}
	defer closeSession()

	p := newPrompter(c.App.Reader, c.App.Writer)
	defer p.Close()
	for {
		query, err := p.ask(ctx, "video link> ")
		if errors.Is(err, io.EOF) {
			return nil
		} else if err != nil {
			return err
		}
		metadata, err := fetch(ctx, ses, query)
		if err != nil {
			reportError(c.App.Writer, err)
			continue
		}
		if err := printMetadata(c.App.Writer, metadata); err != nil {
			return err
		}
		if len(metadata.Formats) == 0 {
			continue
		}

		format, err := chooseFormat(ctx, p, metadata)
		if errors.Is(err, io.EOF) {
			return nil
		} else if err != nil {
			return err
		} else if format.IsNone() {
			continue
		}
		if link, err := ses.Download(ctx, format.Value.Itag); err != nil {
			reportError(c.App.Writer, err)
		} else {
			fmt.Fprintf(c.App.Writer, "downloaded %s\n", link)
		}
	}
}

// chooseFormat asks for a row number or itag from the formats table until it gets a valid one. A blank answer
// chooses nothing.
func chooseFormat(ctx context.Context, p *prompter, metadata video_grabber.VideoMetadata) (generic.Option[video_grabber.FormatVariant], error) {
	for {
		answer, err := p.ask(ctx, fmt.Sprintf("format 1-%d or itag (blank for a new link)> ", len(metadata.Formats)))
		if err != nil {
			return generic.None[video_grabber.FormatVariant](), err
		}
		if answer == "" {
			return generic.None[video_grabber.FormatVariant](), nil
		}
		if row, err := strconv.Atoi(answer); err == nil && row >= 1 && row <= len(metadata.Formats) {
			return generic.Some(metadata.Formats[row-1]), nil
		}
		if format := metadata.FindItag(answer); format.IsSome() {
			return format, nil
		}
		fmt.Fprintf(p.out, "%q is neither a row nor an itag of the table\n", answer)
	}
}

func reportError(out io.Writer, err error) {
	switch {
	case video_grabber.IsValidationError(err):
		fmt.Fprintln(out, err)
	case errors.Is(err, video_grabber.ErrBusy):
		fmt.Fprintln(out, "still working on the previous request, try again")
	default:
		fmt.Fprintf(out, "error: %v\n", err)
	}
}
