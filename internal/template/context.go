package template

// Resolver looks up a placeholder name. The Variable Store implements it.
type Resolver interface {
	Lookup(name string) (interface{}, bool)
}

// Map is a fixed set of values.
type Map map[string]interface{}

// Lookup implements Resolver.
func (m Map) Lookup(name string) (interface{}, bool) {
	v, ok := m[name]
	return v, ok
}

// Layered resolves through several resolvers; later ones override
// values from earlier ones.
func Layered(resolvers ...Resolver) Resolver {
	return layered(resolvers)
}

type layered []Resolver

func (l layered) Lookup(name string) (interface{}, bool) {
	for i := len(l) - 1; i >= 0; i-- {
		if v, ok := l[i].Lookup(name); ok {
			return v, true
		}
	}
	return nil, false
}
