// internal/feed/document.go
package feed

import "sort"

type Category struct {
	ID   uint
	Name string
}

type Parameter struct {
	Name  string
	Value string
}

type Good struct {
	ID         uint64
	CategoryID uint
	Name       string
	Model      string
	Price      uint
	PriceRRC   uint
	Quantity   uint

	parameters []Parameter
}

// Parameters returns the good's attributes ordered by name.
func (g Good) Parameters() []Parameter {
	out := make([]Parameter, len(g.parameters))
	copy(out, g.parameters)
	return out
}

// Document is a validated feed. It is read-only once built by Parse.
type Document struct {
	shop       string
	categories []Category
	goods      []Good
}

func (d *Document) Shop() string {
	return d.shop
}

func (d *Document) Categories() []Category {
	out := make([]Category, len(d.categories))
	copy(out, d.categories)
	return out
}

func (d *Document) Goods() []Good {
	out := make([]Good, len(d.goods))
	for i, g := range d.goods {
		g.parameters = g.Parameters()
		out[i] = g
	}
	return out
}

func newParameters(m map[string]string) []Parameter {
	params := make([]Parameter, 0, len(m))
	for name, value := range m {
		params = append(params, Parameter{Name: name, Value: value})
	}
	sort.Slice(params, func(i, j int) bool { return params[i].Name < params[j].Name })
	return params
}
