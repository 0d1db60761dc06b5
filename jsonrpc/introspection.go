package jsonrpc

import (
	"sort"
	"strings"
)

// IntrospectionPrefix is the conventional mount point of the introspection handler.
const IntrospectionPrefix = "system"

// NewIntrospection returns a handler exposing listMethods, methodHelp and
// methodSignature for the tree rooted at root.
func NewIntrospection(root *Handler) *Handler {
	h := NewHandler(WithSeparator(root.Separator()), WithNotFoundCode(root.NotFoundCode()))

	h.MustRegister("listMethods", func() []string {
		return listMethods(root)
	},
		WithDoc("Return a list of the method names implemented by this server."),
		WithSignature([]string{"array"}))

	h.MustRegister("methodHelp", func(method string) (string, error) {
		m, err := root.Resolve(method)
		if err != nil {
			return "", err
		}
		help := m.Help
		if help == "" {
			help = m.Doc
		}
		return strings.TrimSpace(help), nil
	},
		WithDoc("Return a documentation string describing the use of the given method."),
		WithSignature([]string{"string", "string"}))

	h.MustRegister("methodSignature", func(method string) (any, error) {
		m, err := root.Resolve(method)
		if err != nil {
			return nil, err
		}
		if len(m.Signature) == 0 {
			return "", nil
		}
		return m.Signature, nil
	},
		WithDoc(`Return a list of type signatures.

Each type signature is a list of the form [rtype, type1, type2, ...] where
rtype is the return type and typeN is the type of the Nth argument. If no
signature information is available, the empty string is returned.`),
		WithSignature([]string{"array", "string"}, []string{"string", "string"}))

	return h
}

// AddIntrospection mounts the introspection handler at "system".
func AddIntrospection(root *Handler) error {
	return root.PutSubHandler(IntrospectionPrefix, NewIntrospection(root))
}

// listMethods walks the tree breadth-first and returns every fully qualified
// method name, sorted.
func listMethods(root *Handler) []string {
	type node struct {
		h      *Handler
		prefix string
	}
	var names []string
	todo := []node{{root, ""}}
	for len(todo) > 0 {
		n := todo[0]
		todo = todo[1:]
		for _, name := range n.h.ListLocalMethods() {
			names = append(names, n.prefix+name)
		}
		for _, p := range n.h.SubHandlerPrefixes() {
			if sub, ok := n.h.SubHandler(p); ok {
				todo = append(todo, node{sub, n.prefix + p + n.h.Separator()})
			}
		}
	}
	sort.Strings(names)
	return names
}
