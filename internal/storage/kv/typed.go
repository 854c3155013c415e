package kv

import "fmt"

// String reads key as a string, returning def when the key is absent.
func String(b Bucket, key, def string) (string, error) {
	v, err := b.Get(key)
	if err != nil || v == nil {
		return def, err
	}
	s, ok := v.(string)
	if !ok {
		return def, typeError(key, "string", v)
	}
	return s, nil
}

// Bool reads key as a boolean, returning def when the key is absent.
func Bool(b Bucket, key string, def bool) (bool, error) {
	v, err := b.Get(key)
	if err != nil || v == nil {
		return def, err
	}
	flag, ok := v.(bool)
	if !ok {
		return def, typeError(key, "bool", v)
	}
	return flag, nil
}

// Float reads key as a float64, returning def when the key is absent.
func Float(b Bucket, key string, def float64) (float64, error) {
	v, err := b.Get(key)
	if err != nil || v == nil {
		return def, err
	}
	f, ok := v.(float64)
	if !ok {
		return def, typeError(key, "number", v)
	}
	return f, nil
}

// Int reads key as an int, returning def when the key is absent.
func Int(b Bucket, key string, def int) (int, error) {
	f, err := Float(b, key, float64(def))
	if err != nil {
		return def, err
	}
	if f != float64(int(f)) {
		return def, fmt.Errorf("kv: key %q holds non-integer %v", key, f)
	}
	return int(f), nil
}

func typeError(key, want string, got any) error {
	return fmt.Errorf("kv: key %q holds %T, want %s", key, got, want)
}
