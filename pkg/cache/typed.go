package cache

// GetAs returns the value at key if it is a T.
func GetAs[T any](s *Store, key Key) (T, bool) {
	var zero T
	e, ok := s.Get(key)
	if !ok {
		return zero, false
	}
	v, ok := e.Value.(T)
	return v, ok
}

// UpdateAs is Update for entries holding a T. A cached value of another
// type is left untouched.
func UpdateAs[T any](s *Store, key Key, fn func(prev T, ok bool) (next T, keep bool)) (Entry, bool) {
	return s.Update(key, func(prev any, ok bool) (any, bool) {
		if !ok {
			var zero T
			return fn(zero, false)
		}
		typed, isT := prev.(T)
		if !isT {
			return nil, false
		}
		return fn(typed, true)
	})
}
