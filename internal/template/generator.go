package template

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/thanhpk/randstr"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/wesleyorama2/loadsim/internal/workload"
)

const (
	generatorPrefix = "%"
	variablePrefix  = "#"

	defaultStringLength = 10
	defaultArrayMin     = 1
	defaultArrayMax     = 5
)

// valueFunc produces a fresh value from a generator argument. arg is nil for
// the string form ("%uuid").
type valueFunc func(g *generator, arg interface{}) (interface{}, error)

var generators map[string]valueFunc

func init() {
	generators = map[string]valueFunc{
		"%objectid":   genObjectID,
		"%uuid":       genUUID,
		"%now":        genNow,
		"%integer":    genInteger,
		"%natural":    genNatural,
		"%double":     genDouble,
		"%bool":       genBool,
		"%string":     genString,
		"%date":       genDate,
		"%dictionary": genDictionary,
		"%oneOf":      genOneOf,
		"%array":      genArray,
	}
}

// Generators returns the names of all known generators.
func Generators() []string {
	names := make([]string, 0, len(generators))
	for name := range generators {
		names = append(names, name)
	}
	return names
}

// generator evaluates template expressions for one iteration.
type generator struct {
	dictionaries map[string][]interface{}
	vars         workload.Document
}

// bind evaluates vars in declaration scope and adds them to the iteration's
// variables, overriding any earlier value of the same name.
func (g *generator) bind(vars workload.Document) error {
	for name, expr := range vars {
		v, err := g.eval(expr)
		if err != nil {
			return fmt.Errorf("variable %s: %w", name, err)
		}
		g.vars[name] = v
	}
	return nil
}

func (g *generator) document(doc workload.Document) (workload.Document, error) {
	out := make(workload.Document, len(doc))
	for k, v := range doc {
		ev, err := g.eval(v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		out[k] = ev
	}
	return out, nil
}

func (g *generator) eval(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case string:
		return g.evalString(t)
	case map[string]interface{}:
		if name, arg, ok := generatorCall(t); ok {
			fn, known := generators[name]
			if !known {
				return nil, fmt.Errorf("unknown generator %s", name)
			}
			return fn(g, arg)
		}
		return g.document(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			ev, err := g.eval(item)
			if err != nil {
				return nil, err
			}
			out[i] = ev
		}
		return out, nil
	default:
		return v, nil
	}
}

func (g *generator) evalString(s string) (interface{}, error) {
	switch {
	case strings.HasPrefix(s, variablePrefix+variablePrefix):
		// "##x" is the literal "#x"
		return s[1:], nil
	case strings.HasPrefix(s, variablePrefix) && len(s) > 1:
		v, ok := g.vars[s[1:]]
		if !ok {
			return nil, fmt.Errorf("unknown variable %s", s)
		}
		return v, nil
	case strings.HasPrefix(s, generatorPrefix):
		if fn, ok := generators[s]; ok {
			return fn(g, nil)
		}
	}
	return s, nil
}

// generatorCall reports whether m is the map form of a generator: a single
// key starting with '%'.
func generatorCall(m map[string]interface{}) (string, interface{}, bool) {
	if len(m) != 1 {
		return "", nil, false
	}
	for k, arg := range m {
		if strings.HasPrefix(k, generatorPrefix) {
			return k, arg, true
		}
	}
	return "", nil, false
}

// rangeChecks validate generator bounds once, when the template is built.
var rangeChecks = map[string]func(arg interface{}) error{
	"%integer": func(arg interface{}) error { _, _, err := integerRange(arg); return err },
	"%natural": func(arg interface{}) error { _, _, err := naturalRange(arg); return err },
	"%array":   func(arg interface{}) error { _, _, _, err := arraySize(arg); return err },
}

// validate walks a template and rejects unknown generators and invalid
// integer ranges.
func validate(v interface{}) error {
	switch t := v.(type) {
	case map[string]interface{}:
		if name, arg, ok := generatorCall(t); ok {
			if _, known := generators[name]; !known {
				return fmt.Errorf("unknown generator %s", name)
			}
			if check, ok := rangeChecks[name]; ok {
				if err := check(arg); err != nil {
					return err
				}
			}
			return validate(arg)
		}
		for k, item := range t {
			if err := validate(item); err != nil {
				return fmt.Errorf("field %s: %w", k, err)
			}
		}
	case []interface{}:
		for _, item := range t {
			if err := validate(item); err != nil {
				return err
			}
		}
	}
	return nil
}

func genObjectID(*generator, interface{}) (interface{}, error) {
	return primitive.NewObjectID(), nil
}

func genUUID(*generator, interface{}) (interface{}, error) {
	return uuid.NewString(), nil
}

func genNow(*generator, interface{}) (interface{}, error) {
	return time.Now().UTC(), nil
}

func integerRange(arg interface{}) (int64, int64, error) {
	lo, hi, err := intRange(arg, math.MinInt32, math.MaxInt32)
	if err != nil {
		return 0, 0, fmt.Errorf("%%integer: %w", err)
	}
	return lo, hi, nil
}

func naturalRange(arg interface{}) (int64, int64, error) {
	lo, hi, err := intRange(arg, 0, math.MaxInt32)
	if err != nil {
		return 0, 0, fmt.Errorf("%%natural: %w", err)
	}
	if lo < 0 {
		return 0, 0, fmt.Errorf("%%natural: min must be >= 0")
	}
	return lo, hi, nil
}

func genInteger(_ *generator, arg interface{}) (interface{}, error) {
	lo, hi, err := integerRange(arg)
	if err != nil {
		return nil, err
	}
	return lo + rand.Int63n(hi-lo+1), nil
}

func genNatural(_ *generator, arg interface{}) (interface{}, error) {
	lo, hi, err := naturalRange(arg)
	if err != nil {
		return nil, err
	}
	return lo + rand.Int63n(hi-lo+1), nil
}

func genDouble(_ *generator, arg interface{}) (interface{}, error) {
	args, err := argMap(arg)
	if err != nil {
		return nil, fmt.Errorf("%%double: %w", err)
	}
	lo, err := floatArg(args, "min", 0)
	if err != nil {
		return nil, fmt.Errorf("%%double: %w", err)
	}
	hi, err := floatArg(args, "max", 1)
	if err != nil {
		return nil, fmt.Errorf("%%double: %w", err)
	}
	if hi < lo {
		return nil, fmt.Errorf("%%double: max %v < min %v", hi, lo)
	}
	return lo + rand.Float64()*(hi-lo), nil
}

func genBool(*generator, interface{}) (interface{}, error) {
	return rand.Intn(2) == 1, nil
}

func genString(_ *generator, arg interface{}) (interface{}, error) {
	args, err := argMap(arg)
	if err != nil {
		return nil, fmt.Errorf("%%string: %w", err)
	}
	n, err := intArg(args, "length", defaultStringLength)
	if err != nil {
		return nil, fmt.Errorf("%%string: %w", err)
	}
	if n < 0 {
		return nil, fmt.Errorf("%%string: length must be >= 0")
	}
	return randstr.String(int(n)), nil
}

func genDate(_ *generator, arg interface{}) (interface{}, error) {
	args, err := argMap(arg)
	if err != nil {
		return nil, fmt.Errorf("%%date: %w", err)
	}
	now := time.Now().UTC()
	lo, err := timeArg(args, "min", now.AddDate(-1, 0, 0))
	if err != nil {
		return nil, fmt.Errorf("%%date: %w", err)
	}
	hi, err := timeArg(args, "max", now)
	if err != nil {
		return nil, fmt.Errorf("%%date: %w", err)
	}
	span := hi.Sub(lo)
	if span < 0 {
		return nil, fmt.Errorf("%%date: max before min")
	}
	if span == 0 {
		return lo, nil
	}
	return lo.Add(time.Duration(rand.Int63n(int64(span)))).Truncate(time.Millisecond), nil
}

func genDictionary(g *generator, arg interface{}) (interface{}, error) {
	args, err := argMap(arg)
	if err != nil {
		return nil, fmt.Errorf("%%dictionary: %w", err)
	}
	name, _ := args["name"].(string)
	entries, ok := g.dictionaries[name]
	if !ok || len(entries) == 0 {
		return nil, fmt.Errorf("%%dictionary: unknown dictionary %q", name)
	}
	return entries[rand.Intn(len(entries))], nil
}

func genOneOf(g *generator, arg interface{}) (interface{}, error) {
	choices, ok := arg.([]interface{})
	if !ok || len(choices) == 0 {
		return nil, fmt.Errorf("%%oneOf: expected a non-empty array")
	}
	return g.eval(choices[rand.Intn(len(choices))])
}

// arraySize reads the element template and size bounds of %array.
func arraySize(arg interface{}) (interface{}, int64, int64, error) {
	args, err := argMap(arg)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%%array: %w", err)
	}
	of, ok := args["of"]
	if !ok {
		return nil, 0, 0, fmt.Errorf("%%array: 'of' is required")
	}
	lo, err := intArg(args, "min", defaultArrayMin)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%%array: %w", err)
	}
	hi, err := intArg(args, "max", defaultArrayMax)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%%array: %w", err)
	}
	if lo < 0 || hi < lo || hi-lo+1 <= 0 {
		return nil, 0, 0, fmt.Errorf("%%array: invalid size range [%d, %d]", lo, hi)
	}
	return of, lo, hi, nil
}

func genArray(g *generator, arg interface{}) (interface{}, error) {
	of, lo, hi, err := arraySize(arg)
	if err != nil {
		return nil, err
	}

	n := lo + rand.Int63n(hi-lo+1)
	out := make([]interface{}, n)
	for i := range out {
		v, err := g.eval(of)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func argMap(arg interface{}) (map[string]interface{}, error) {
	switch t := arg.(type) {
	case nil:
		return map[string]interface{}{}, nil
	case map[string]interface{}:
		return t, nil
	default:
		return nil, fmt.Errorf("expected an argument document, got %T", arg)
	}
}

func intRange(arg interface{}, defLo, defHi int64) (int64, int64, error) {
	args, err := argMap(arg)
	if err != nil {
		return 0, 0, err
	}
	lo, err := intArg(args, "min", defLo)
	if err != nil {
		return 0, 0, err
	}
	hi, err := intArg(args, "max", defHi)
	if err != nil {
		return 0, 0, err
	}
	if hi < lo {
		return 0, 0, fmt.Errorf("max %d < min %d", hi, lo)
	}
	if hi-lo+1 <= 0 {
		return 0, 0, fmt.Errorf("range [%d, %d] is too wide", lo, hi)
	}
	return lo, hi, nil
}

func intArg(args map[string]interface{}, key string, def int64) (int64, error) {
	v, ok := args[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%s must be an integer", key)
		}
		return int64(n), nil
	case json.Number:
		return n.Int64()
	default:
		return 0, fmt.Errorf("%s must be an integer, got %T", key, v)
	}
}

func floatArg(args map[string]interface{}, key string, def float64) (float64, error) {
	v, ok := args[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	case json.Number:
		return n.Float64()
	default:
		return 0, fmt.Errorf("%s must be a number, got %T", key, v)
	}
}

func timeArg(args map[string]interface{}, key string, def time.Time) (time.Time, error) {
	v, ok := args[key]
	if !ok {
		return def, nil
	}
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}, fmt.Errorf("%s: %w", key, err)
		}
		return parsed.UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("%s must be an RFC3339 date, got %T", key, v)
	}
}
