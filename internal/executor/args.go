package executor

import (
	"fmt"
	"strconv"

	"github.com/frahmantamala/scriptdeck/internal/parameter"
)

// BuildArgs turns validated values into long-form flags, in value order.
// true becomes a bare --name, false and nil are omitted, and each list
// element gets its own --name=element.
func BuildArgs(values parameter.Values) []string {
	args := make([]string, 0, len(values))
	for _, v := range values {
		flag := "--" + v.Name
		switch val := v.Value.(type) {
		case nil:
		case bool:
			if val {
				args = append(args, flag)
			}
		case []string:
			for _, elem := range val {
				args = append(args, flag+"="+elem)
			}
		case float64:
			args = append(args, flag+"="+strconv.FormatFloat(val, 'f', -1, 64))
		case string:
			args = append(args, flag+"="+val)
		default:
			args = append(args, flag+"="+fmt.Sprint(val))
		}
	}
	return args
}
