package note

import "github.com/invopop/jsonschema"

var schemaReflector = jsonschema.Reflector{
	AllowAdditionalProperties: false,
	DoNotReference:            true,
	ExpandedStruct:            true,
}

// Schema returns the JSON schema of t's fields, titled with the type name.
// Embedded ancestors contribute their fields. The schema is built once.
func (t *Type) Schema() *jsonschema.Schema {
	t.schemaOnce.Do(func() {
		s := schemaReflector.ReflectFromType(t.goType)
		s.Version = ""
		s.Title = t.name
		s.Description = t.description
		t.schema = s
	})
	return t.schema
}

// Validate runs n's own validation when it implements Validator.
func Validate(n Note) error {
	if v, ok := n.(Validator); ok {
		return v.Validate()
	}
	return nil
}
