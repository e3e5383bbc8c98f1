package generic

// Void is the empty value, for generic types that need a type parameter but carry no data.
type Void = struct{}

func NewVoid() Void {
	return Void{}
}
