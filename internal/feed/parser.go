// internal/feed/parser.go
package feed

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/javajoker/partner-catalog/internal/apperr"
)

// Raw shapes use pointers so a missing key is distinguishable from a zero value.
// Numeric fields are capped at the signed 64-bit range of the store columns.
type rawFeed struct {
	Shop       *string       `yaml:"shop" validate:"required,max=50"`
	Categories []rawCategory `yaml:"categories" validate:"required,dive"`
	Goods      []rawGood     `yaml:"goods" validate:"required,dive"`
}

type rawCategory struct {
	ID   *uint   `yaml:"id" validate:"present,max=9223372036854775807"`
	Name *string `yaml:"name" validate:"required,max=50"`
}

type rawGood struct {
	ID         *uint64           `yaml:"id" validate:"present,max=9223372036854775807"`
	Category   *uint             `yaml:"category" validate:"present,max=9223372036854775807"`
	Name       *string           `yaml:"name" validate:"required,max=100"`
	Model      *string           `yaml:"model" validate:"omitempty,max=80"`
	Price      *uint             `yaml:"price" validate:"present,max=9223372036854775807"`
	PriceRRC   *uint             `yaml:"price_rrc" validate:"present,max=9223372036854775807"`
	Quantity   *uint             `yaml:"quantity" validate:"present,max=9223372036854775807"`
	Parameters map[string]string `yaml:"parameters" validate:"required,dive,keys,required,max=50,endkeys,max=100"`
}

// integerFields lists the keys under each top-level section that must be
// plain integers. yaml.v3 would otherwise truncate floats into them.
var integerFields = map[string][]string{
	"categories": {"id"},
	"goods":      {"id", "category", "price", "price_rrc", "quantity"},
}

var (
	feedValidate = newFeedValidator()
	lineRe       = regexp.MustCompile(`line (\d+)`)
	valueRe      = regexp.MustCompile("`([^`]*)`")
)

func newFeedValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// Nil pointers never reach the func: the validator reports them under
	// this tag. Present values of any size are accepted.
	v.RegisterValidation("present", func(fl validator.FieldLevel) bool { return true })
	return v
}

// Parse decodes a raw feed and validates its shape. Any defect rejects the
// whole document with a schema error naming the offending field.
func Parse(raw []byte) (*Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, decodeError(nil, err)
	}
	if len(root.Content) == 0 {
		return nil, apperr.Schema("document", "feed is empty")
	}
	if root.Content[0].Kind != yaml.MappingNode {
		return nil, apperr.Schema("document", "top level must be a mapping")
	}

	if err := checkIntegers(root.Content[0]); err != nil {
		return nil, err
	}

	var rf rawFeed
	if err := root.Decode(&rf); err != nil {
		return nil, decodeError(&root, err)
	}

	if err := feedValidate.Struct(&rf); err != nil {
		return nil, validationError(err)
	}

	return buildDocument(&rf)
}

// checkIntegers rejects numeric fields whose scalar does not resolve to an
// integer, such as 499.99 or "5". Missing and null values are left to the
// validator.
func checkIntegers(top *yaml.Node) error {
	for i := 0; i+1 < len(top.Content); i += 2 {
		section, list := top.Content[i].Value, top.Content[i+1]
		keys, ok := integerFields[section]
		if !ok || list.Kind != yaml.SequenceNode {
			continue
		}

		for idx, item := range list.Content {
			if item.Kind != yaml.MappingNode {
				continue
			}
			for j := 0; j+1 < len(item.Content); j += 2 {
				key, val := item.Content[j].Value, item.Content[j+1]
				if !containsKey(keys, key) || val.Kind != yaml.ScalarNode {
					continue
				}
				switch val.ShortTag() {
				case "!!int", "!!null":
				default:
					return apperr.Schema(fmt.Sprintf("%s[%d].%s", section, idx, key),
						fmt.Sprintf("must be a non-negative integer, got %q", val.Value))
				}
			}
		}
	}
	return nil
}

func containsKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

func buildDocument(rf *rawFeed) (*Document, error) {
	doc := &Document{
		shop:       strings.TrimSpace(*rf.Shop),
		categories: make([]Category, 0, len(rf.Categories)),
		goods:      make([]Good, 0, len(rf.Goods)),
	}
	if doc.shop == "" {
		return nil, apperr.Schema("shop", "must not be blank")
	}

	seenCategories := make(map[uint]int, len(rf.Categories))
	for i, c := range rf.Categories {
		if prev, ok := seenCategories[*c.ID]; ok {
			return nil, apperr.Schema(fmt.Sprintf("categories[%d].id", i),
				fmt.Sprintf("duplicate id %d (also categories[%d])", *c.ID, prev))
		}
		seenCategories[*c.ID] = i
		doc.categories = append(doc.categories, Category{ID: *c.ID, Name: *c.Name})
	}

	seenGoods := make(map[uint64]int, len(rf.Goods))
	for i, g := range rf.Goods {
		if prev, ok := seenGoods[*g.ID]; ok {
			return nil, apperr.Schema(fmt.Sprintf("goods[%d].id", i),
				fmt.Sprintf("duplicate id %d (also goods[%d])", *g.ID, prev))
		}
		seenGoods[*g.ID] = i

		good := Good{
			ID:         *g.ID,
			CategoryID: *g.Category,
			Name:       *g.Name,
			Price:      *g.Price,
			PriceRRC:   *g.PriceRRC,
			Quantity:   *g.Quantity,
			parameters: newParameters(g.Parameters),
		}
		if g.Model != nil {
			good.Model = *g.Model
		}
		doc.goods = append(doc.goods, good)
	}

	return doc, nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.Schema("document", err.Error())
	}

	e := verrs[0]
	field := e.Namespace()
	// Drop the root type name
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}

	switch e.Tag() {
	case "required", "present":
		return apperr.Schema(field, "is required")
	case "max":
		if e.Kind() == reflect.String {
			return apperr.Schema(field, fmt.Sprintf("must be at most %s characters", e.Param()))
		}
		return apperr.Schema(field, fmt.Sprintf("must be at most %s", e.Param()))
	default:
		return apperr.Schema(field, "is invalid")
	}
}

// decodeError maps a YAML error back to the field it was raised for, using
// the line number in the message and the offending value when present.
func decodeError(root *yaml.Node, err error) error {
	var typeErr *yaml.TypeError
	msg := err.Error()
	if errors.As(err, &typeErr) && len(typeErr.Errors) > 0 {
		msg = typeErr.Errors[0]
	}
	msg = strings.TrimPrefix(msg, "yaml: ")

	field := "document"
	if root != nil {
		if m := lineRe.FindStringSubmatch(msg); m != nil {
			line, _ := strconv.Atoi(m[1])
			hint := ""
			if v := valueRe.FindStringSubmatch(msg); v != nil {
				hint = v[1]
			}
			if path := fieldAtLine(root, line, hint); path != "" {
				field = path
			}
		}
	}
	return apperr.Schema(field, msg)
}

type location struct {
	path  string
	line  int
	value string
}

func fieldAtLine(root *yaml.Node, line int, value string) string {
	var locs []location
	collect(root, "", &locs)

	fallback := ""
	for _, l := range locs {
		if l.line != line {
			continue
		}
		if value != "" && l.value == value {
			return l.path
		}
		if fallback == "" {
			fallback = l.path
		}
	}
	return fallback
}

func collect(n *yaml.Node, path string, out *[]location) {
	switch n.Kind {
	case yaml.DocumentNode:
		for _, c := range n.Content {
			collect(c, path, out)
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, val := n.Content[i], n.Content[i+1]
			p := key.Value
			if path != "" {
				p = path + "." + key.Value
			}
			loc := location{path: p, line: key.Line}
			if val.Kind == yaml.ScalarNode {
				loc.value = val.Value
			}
			*out = append(*out, loc)
			collect(val, p, out)
		}
	case yaml.SequenceNode:
		for i, c := range n.Content {
			p := fmt.Sprintf("%s[%d]", path, i)
			if c.Kind == yaml.ScalarNode {
				*out = append(*out, location{path: p, line: c.Line, value: c.Value})
			}
			collect(c, p, out)
		}
	}
}
