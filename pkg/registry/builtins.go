package registry

import (
	"context"
	"fmt"
)

func init() {
	Register("const", func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		if len(args) == 0 {
			return nil, nil
		}
		return args[0], nil
	})

	Register("add", func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		sum := 0.0
		for _, a := range args {
			n, err := toFloat(a)
			if err != nil {
				return nil, err
			}
			sum += n
		}
		return sum, nil
	})

	Register("multiply", func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		product := 1.0
		for _, a := range args {
			n, err := toFloat(a)
			if err != nil {
				return nil, err
			}
			product *= n
		}
		return product, nil
	})

	Register("concat", func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		s := ""
		for _, a := range args {
			s += fmt.Sprint(a)
		}
		return s, nil
	})

	Register("identity", func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		if len(args) == 0 {
			return nil, nil
		}
		return args[0], nil
	})
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("registry: %v is not numeric", v)
	}
}
