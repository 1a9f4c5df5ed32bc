package parameter_test

import (
	"encoding/json"

	"github.com/frahmantamala/scriptdeck/internal"
	"github.com/frahmantamala/scriptdeck/internal/parameter"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gopkg.in/yaml.v3"
)

var _ = Describe("Definitions", func() {
	Describe("ValidateDefinitions", func() {
		It("should accept a well formed schema", func() {
			err := parameter.ValidateDefinitions([]parameter.Definition{
				{Name: "min-size", Type: parameter.TypeNumber, Default: parameter.NumberDefault(0)},
				{Name: "format", Type: parameter.TypeText, Default: parameter.TextDefault("text"), Validation: "^(text|json)$"},
				{Name: "verbose", Type: parameter.TypeBoolean, Default: parameter.BoolDefault(false)},
				{Name: "paths", Type: parameter.TypeList, Default: parameter.ListDefault("/")},
				{Name: "target", Type: parameter.TypeText, Required: true},
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("should reject a required parameter with a default", func() {
			err := parameter.ValidateDefinitions([]parameter.Definition{
				{Name: "target", Type: parameter.TypeText, Required: true, Default: parameter.TextDefault("x")},
			})

			Expect(err).To(HaveOccurred())
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeInvalidModuleDefinition))
			Expect(err.Error()).To(ContainSubstring("required and cannot declare a default"))
		})

		It("should reject a default of the wrong type", func() {
			err := parameter.ValidateDefinitions([]parameter.Definition{
				{Name: "count", Type: parameter.TypeNumber, Default: parameter.TextDefault("3")},
			})
			Expect(err.Error()).To(ContainSubstring("default is text but the parameter is number"))
		})

		It("should reject patterns on non-text parameters and broken patterns", func() {
			err := parameter.ValidateDefinitions([]parameter.Definition{
				{Name: "count", Type: parameter.TypeNumber, Validation: "^1$"},
				{Name: "name", Type: parameter.TypeText, Validation: "(["},
			})
			Expect(internal.FieldErrors(err)).To(HaveLen(2))
		})

		It("should reject a text default that fails its own pattern", func() {
			err := parameter.ValidateDefinitions([]parameter.Definition{
				{Name: "format", Type: parameter.TypeText, Default: parameter.TextDefault("xml"), Validation: "^(text|json)$"},
			})
			Expect(err.Error()).To(ContainSubstring("does not satisfy its validation pattern"))
		})

		It("should reject duplicate, malformed and untyped entries", func() {
			err := parameter.ValidateDefinitions([]parameter.Definition{
				{Name: "a", Type: parameter.TypeText},
				{Name: "a", Type: parameter.TypeText},
				{Name: "-bad", Type: parameter.TypeText},
				{Name: "c", Type: "date"},
			})
			Expect(internal.FieldErrors(err)).To(HaveLen(3))
		})
	})

	Describe("Default encoding", func() {
		It("should decode JSON defaults by their native kind", func() {
			var defs []parameter.Definition
			err := json.Unmarshal([]byte(`[
				{"name":"a","type":"text","default":"x"},
				{"name":"b","type":"number","default":2.5},
				{"name":"c","type":"boolean","default":true},
				{"name":"d","type":"list","default":["p","q"]}
			]`), &defs)

			Expect(err).NotTo(HaveOccurred())
			Expect(defs[0].Default).To(Equal(parameter.TextDefault("x")))
			Expect(defs[1].Default).To(Equal(parameter.NumberDefault(2.5)))
			Expect(defs[2].Default).To(Equal(parameter.BoolDefault(true)))
			Expect(defs[3].Default).To(Equal(parameter.ListDefault("p", "q")))
		})

		It("should refuse object defaults", func() {
			var def parameter.Definition
			err := json.Unmarshal([]byte(`{"name":"a","type":"text","default":{"x":1}}`), &def)
			Expect(err).To(HaveOccurred())
		})

		It("should round trip through JSON", func() {
			in := parameter.Definition{Name: "tags", Type: parameter.TypeList, Default: parameter.ListDefault("a")}
			data, err := json.Marshal(in)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring(`"default":["a"]`))

			var out parameter.Definition
			Expect(json.Unmarshal(data, &out)).To(Succeed())
			Expect(out).To(Equal(in))
		})

		It("should decode YAML defaults by tag", func() {
			var defs []parameter.Definition
			err := yaml.Unmarshal([]byte(`
- name: format
  type: text
  default: "123"
- name: min-size
  type: number
  default: 0
- name: verbose
  type: boolean
  default: false
- name: paths
  type: list
  default: [/var, /tmp]
`), &defs)

			Expect(err).NotTo(HaveOccurred())
			Expect(defs[0].Default).To(Equal(parameter.TextDefault("123")))
			Expect(defs[1].Default).To(Equal(parameter.NumberDefault(0)))
			Expect(defs[2].Default).To(Equal(parameter.BoolDefault(false)))
			Expect(defs[3].Default).To(Equal(parameter.ListDefault("/var", "/tmp")))
		})
	})
})
