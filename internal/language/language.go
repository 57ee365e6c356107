package language

import (
	"bytes"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
	"github.com/vektah/gqlparser/v2/parser"
	"github.com/vektah/gqlparser/v2/validator"
)

// ParseQuery parses an executable GraphQL document (queries, mutations,
// subscriptions, fragments). The returned error, if any, is a
// *gqlerror.Error carrying source locations.
func ParseQuery(source string) (*QueryDocument, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: source})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// ParseSchema parses schema-definition text into a mutable SchemaDocument.
// The gqlparser prelude (built-in scalars, directives and introspection
// types) is always prepended so the document can later be compiled without
// further input.
func ParseSchema(name, source string) (*SchemaDocument, error) {
	doc, err := parser.ParseSchemas(
		validator.Prelude,
		&ast.Source{Name: name, Input: source},
	)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// CompileSchema validates a SchemaDocument and compiles it into the
// executable schema form consumed by the query validator and the executor.
func CompileSchema(doc *SchemaDocument) (*Schema, error) {
	return validator.ValidateSchemaDocument(doc)
}

// RenderSchemaDocument renders a SchemaDocument back to SDL text, omitting
// the prelude definitions that ParseSchema prepends. Feeding the output back
// through ParseSchema yields an AST-equivalent document, which makes the
// rendered text suitable for persisting a built schema across processes.
func RenderSchemaDocument(doc *SchemaDocument) string {
	out := ast.SchemaDocument{
		Schema:          doc.Schema,
		SchemaExtension: doc.SchemaExtension,
	}
	for _, def := range doc.Definitions {
		if !builtIn(def.BuiltIn, def.Position) {
			out.Definitions = append(out.Definitions, def)
		}
	}
	for _, def := range doc.Extensions {
		if !builtIn(def.BuiltIn, def.Position) {
			out.Extensions = append(out.Extensions, def)
		}
	}
	for _, dir := range doc.Directives {
		if !builtIn(false, dir.Position) {
			out.Directives = append(out.Directives, dir)
		}
	}

	var buf bytes.Buffer
	f := formatter.NewFormatter(&buf)
	f.FormatSchemaDocument(&out)
	return buf.String()
}

func builtIn(flag bool, pos *ast.Position) bool {
	if flag {
		return true
	}
	return pos != nil && pos.Src != nil && pos.Src.BuiltIn
}
