package callable

// ObserverOption attaches a hook to an observed callable.
type ObserverOption func(*observer)

type observer struct {
	onCall   func(args []any)
	onResult func(result any)
	onError  func(err error)
}

// OnCall runs before the base callable, with the arguments it is about
// to receive.
func OnCall(fn func(args []any)) ObserverOption {
	return func(o *observer) { o.onCall = fn }
}

// OnResult runs after a successful call, with its result.
func OnResult(fn func(result any)) ObserverOption {
	return func(o *observer) { o.onResult = fn }
}

// OnError runs after a failed call, with its error.
func OnError(fn func(err error)) ObserverOption {
	return func(o *observer) { o.onError = fn }
}

// Observe wraps base so the configured hooks fire around every call.
// Results and errors pass through unchanged; exactly one of the
// OnResult and OnError hooks fires per call, after OnCall.
func Observe(base Handler, opts ...ObserverOption) (Handler, error) {
	if base == nil {
		return nil, ErrNilHandler
	}
	o := &observer{}
	for _, opt := range opts {
		opt(o)
	}
	return func(args ...any) (any, error) {
		if o.onCall != nil {
			o.onCall(args)
		}
		result, err := base(args...)
		if err != nil {
			if o.onError != nil {
				o.onError(err)
			}
			return result, err
		}
		if o.onResult != nil {
			o.onResult(result)
		}
		return result, nil
	}, nil
}
