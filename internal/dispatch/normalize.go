package dispatch

// Normalize splits a desired value into the driver's primary argument and
// any extra arguments. A sequence contributes its first element as primary
// and the remainder, in order, as rest; any other value is primary on its
// own. rest is never nil.
func Normalize(desired any) (primary any, rest []any) {
	var seq []any
	switch v := desired.(type) {
	case []any:
		seq = v
	case []string:
		seq = make([]any, len(v))
		for i, s := range v {
			seq[i] = s
		}
	case []float64:
		seq = make([]any, len(v))
		for i, f := range v {
			seq[i] = f
		}
	default:
		return desired, []any{}
	}

	if len(seq) == 0 {
		return nil, []any{}
	}
	rest = make([]any, len(seq)-1)
	copy(rest, seq[1:])
	return seq[0], rest
}
