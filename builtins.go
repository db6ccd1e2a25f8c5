package mellow

import (
	"fmt"
	"strconv"
	"time"
)

// callBuiltin dispatches a free function call to Mellow's built-in
// set, grounded on original_source/src/interpreter/mod.rs's
// call_builtin plus the channel functions of
// original_source/src/stdlib/chan.rs. handled is false when name isn't
// a builtin, letting the caller fall through to a named function.
func callBuiltin(name string, args []Value) (result Value, handled bool, err error) {
	switch name {
	case "print":
		for i, a := range args {
			if i > 0 {
				fmt.Print(" ")
			}
			fmt.Print(displayValue(a))
		}
		fmt.Println()
		return Unit{}, true, nil

	case "len":
		if err := arity(name, args, 1); err != nil {
			return nil, true, err
		}
		switch t := args[0].(type) {
		case String:
			return Int(len(t)), true, nil
		case *Array:
			return Int(len(t.Items)), true, nil
		case *Record:
			return Int(len(t.Keys)), true, nil
		}
		return nil, true, NewRuntimeError(ErrType, "len() requires string, array, or record")

	case "toString":
		if err := arity(name, args, 1); err != nil {
			return nil, true, err
		}
		return String(displayValue(args[0])), true, nil

	case "toInt":
		if err := arity(name, args, 1); err != nil {
			return nil, true, err
		}
		switch t := args[0].(type) {
		case Int:
			return t, true, nil
		case Float:
			return Int(int64(t)), true, nil
		case String:
			n, convErr := strconv.ParseInt(string(t), 10, 64)
			if convErr != nil {
				return nil, true, NewRuntimeError(ErrType, fmt.Sprintf("cannot convert %q to Int", string(t)))
			}
			return Int(n), true, nil
		}
		return nil, true, NewRuntimeError(ErrType, "cannot convert to Int")

	case "isOkay":
		if err := arity(name, args, 1); err != nil {
			return nil, true, err
		}
		_, ok := args[0].(*Okay)
		return Bool(ok), true, nil

	case "isOops":
		if err := arity(name, args, 1); err != nil {
			return nil, true, err
		}
		_, ok := args[0].(*Oops)
		return Bool(ok), true, nil

	case "unwrapOr":
		if err := arity(name, args, 2); err != nil {
			return nil, true, err
		}
		switch t := args[0].(type) {
		case *Okay:
			return t.Inner, true, nil
		case *Oops:
			return args[1], true, nil
		default:
			return t, true, nil
		}

	case "getOkay":
		if err := arity(name, args, 1); err != nil {
			return nil, true, err
		}
		if o, ok := args[0].(*Okay); ok {
			return o.Inner, true, nil
		}
		return Unit{}, true, nil

	case "getOops":
		if err := arity(name, args, 1); err != nil {
			return nil, true, err
		}
		if o, ok := args[0].(*Oops); ok {
			return String(o.Message), true, nil
		}
		return Unit{}, true, nil

	case "make_chan":
		if len(args) > 1 {
			return nil, true, NewRuntimeError(ErrArity, "make_chan expects 0 or 1 arguments")
		}
		capacity := 0
		if len(args) == 1 {
			n, ok := args[0].(Int)
			if !ok {
				return nil, true, NewRuntimeError(ErrType, "channel capacity must be an Int")
			}
			if n < 0 {
				return nil, true, NewRuntimeError(ErrType, "channel capacity cannot be negative")
			}
			if n > maxChannelBuffer {
				return nil, true, NewRuntimeError(ErrType, fmt.Sprintf("channel capacity too large (max %d)", maxChannelBuffer))
			}
			capacity = int(n)
		}
		return NewChannel(capacity), true, nil

	case "send":
		if err := arity(name, args, 2); err != nil {
			return nil, true, err
		}
		ch, ok := args[0].(*Channel)
		if !ok {
			return nil, true, NewRuntimeError(ErrType, "send() requires a Channel")
		}
		if sendErr := ch.impl.Send(args[1]); sendErr != nil {
			return &Oops{Message: sendErr.Error()}, true, nil
		}
		return Bool(true), true, nil

	case "recv":
		if err := arity(name, args, 1); err != nil {
			return nil, true, err
		}
		ch, ok := args[0].(*Channel)
		if !ok {
			return nil, true, NewRuntimeError(ErrType, "recv() requires a Channel")
		}
		v, recvErr := ch.impl.Receive()
		if recvErr != nil {
			return &Oops{Message: recvErr.Error()}, true, nil
		}
		return &Okay{Inner: v}, true, nil

	case "try_recv":
		if err := arity(name, args, 1); err != nil {
			return nil, true, err
		}
		ch, ok := args[0].(*Channel)
		if !ok {
			return nil, true, NewRuntimeError(ErrType, "try_recv() requires a Channel")
		}
		v, got, closed := ch.impl.TryReceive()
		if closed {
			return &Oops{Message: "receive on closed channel"}, true, nil
		}
		if !got {
			return &Oops{Message: "channel empty"}, true, nil
		}
		return &Okay{Inner: v}, true, nil

	case "recv_timeout":
		if err := arity(name, args, 2); err != nil {
			return nil, true, err
		}
		ch, ok := args[0].(*Channel)
		if !ok {
			return nil, true, NewRuntimeError(ErrType, "recv_timeout() requires a Channel")
		}
		ms, ok := args[1].(Int)
		if !ok || ms < 0 {
			return nil, true, NewRuntimeError(ErrType, "timeout_ms must be a non-negative Int")
		}
		v, got, closed := ch.impl.ReceiveTimeout(time.Duration(ms) * time.Millisecond)
		if closed {
			return &Oops{Message: "receive on closed channel"}, true, nil
		}
		if !got {
			return &Oops{Message: "timeout"}, true, nil
		}
		return &Okay{Inner: v}, true, nil

	case "close":
		if err := arity(name, args, 1); err != nil {
			return nil, true, err
		}
		ch, ok := args[0].(*Channel)
		if !ok {
			return nil, true, NewRuntimeError(ErrType, "close() requires a Channel")
		}
		ch.impl.Close()
		return Bool(true), true, nil

	case "is_closed":
		if err := arity(name, args, 1); err != nil {
			return nil, true, err
		}
		ch, ok := args[0].(*Channel)
		if !ok {
			return nil, true, NewRuntimeError(ErrType, "is_closed() requires a Channel")
		}
		return Bool(ch.impl.isClosed()), true, nil
	}

	return nil, false, nil
}

func arity(name string, args []Value, want int) error {
	if len(args) != want {
		return NewRuntimeError(ErrArity, fmt.Sprintf("%s() expects %d argument(s), got %d", name, want, len(args)))
	}
	return nil
}
