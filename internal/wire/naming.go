package wire

import (
	"fmt"
	"strings"

	"github.com/jhump/protoreflect/v2/protobuilder"
	"google.golang.org/protobuf/reflect/protoreflect"
)

const (
	tensorMessage      protoreflect.Name = "Tensor"
	tupleMessage       protoreflect.Name = "Tuple"
	pullRequestMessage protoreflect.Name = "PullRequest"
	serviceName        protoreflect.Name = "TupleService"
	pullMethod         protoreflect.Name = "Pull"

	maxTuplesField protoreflect.Name = "max_tuples"
	dtypeField     protoreflect.Name = "dtype"
	shapeField     protoreflect.Name = "shape"
	int64Field     protoreflect.Name = "int64_values"
	floatField     protoreflect.Name = "float_values"
	stringField    protoreflect.Name = "string_values"
	int32Field     protoreflect.Name = "int32_values"
)

// fieldName derives a unique proto field name for tuple position i.
func fieldName(name string, i int, seen map[protoreflect.Name]bool) protoreflect.Name {
	base := snakeCase(name)
	if base == "" || !isLetter(base[0]) {
		base = fmt.Sprintf("t%d_%s", i, base)
	}
	n := protoreflect.Name(strings.TrimSuffix(base, "_"))
	if seen[n] {
		n = protoreflect.Name(fmt.Sprintf("%s_%d", n, i))
	}
	seen[n] = true
	return n
}

// snakeCase converts a CamelCase name to snake_case and replaces characters
// not allowed in proto identifiers.
func snakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			if i > 0 && !strings.HasSuffix(b.String(), "_") {
				b.WriteByte('_')
			}
			b.WriteRune(r - 'A' + 'a')
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func isLetter(c byte) bool { return c >= 'a' && c <= 'z' }

func comment(desc string) protobuilder.Comments {
	if desc == "" {
		return protobuilder.Comments{}
	}
	lines := strings.Split(desc, "\n")
	for i, line := range lines {
		lines[i] = " " + line
	}
	return protobuilder.Comments{LeadingComment: strings.Join(lines, "\n") + "\n"}
}
