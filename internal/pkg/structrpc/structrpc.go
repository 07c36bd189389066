// Package structrpc carries service methods whose request and response are
// google.protobuf.Struct, so services can be registered without generated
// stubs.
package structrpc

import (
	"context"
	"fmt"
	"math"

	"github.com/fekuna/omnipos-stock-service/internal/apperror"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Call is the shape every struct-based method has. srv is the registered
// service implementation.
type Call func(srv interface{}, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

// Method builds the MethodDesc for service/name, passing the call through
// the server's interceptor chain.
func Method(service, name string, call Call) grpc.MethodDesc {
	fullMethod := "/" + service + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv, ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// Invoke calls a struct-based method on conn.
func Invoke(ctx context.Context, conn grpc.ClientConnInterface, service, name string, req map[string]interface{}, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	out := new(structpb.Struct)
	if err := conn.Invoke(ctx, "/"+service+"/"+name, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func field(s *structpb.Struct, key string) *structpb.Value {
	if s == nil {
		return nil
	}
	return s.GetFields()[key]
}

// String returns the string at key, or "" when it is absent.
func String(s *structpb.Struct, key string) string {
	return field(s, key).GetStringValue()
}

// Decimal accepts a decimal string or a number. Absent keys are zero.
func Decimal(s *structpb.Struct, key string) (decimal.Decimal, error) {
	v := field(s, key)
	if v == nil {
		return decimal.Zero, nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		if k.StringValue == "" {
			return decimal.Zero, nil
		}
		d, err := decimal.NewFromString(k.StringValue)
		if err != nil {
			return decimal.Zero, apperror.Invalid(key, "is not a decimal")
		}
		return d, nil
	case *structpb.Value_NumberValue:
		return decimal.NewFromFloat(k.NumberValue), nil
	case *structpb.Value_NullValue:
		return decimal.Zero, nil
	}
	return decimal.Zero, apperror.Invalid(key, "must be a number or decimal string")
}

func Int(s *structpb.Struct, key string) (int, error) {
	v := field(s, key)
	if v == nil {
		return 0, nil
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok || n.NumberValue != math.Trunc(n.NumberValue) {
		return 0, apperror.Invalid(key, "must be an integer")
	}
	return int(n.NumberValue), nil
}

func Bool(s *structpb.Struct, key string) bool {
	return field(s, key).GetBoolValue()
}

// Structs returns the objects in the list at key.
func Structs(s *structpb.Struct, key string) ([]*structpb.Struct, error) {
	v := field(s, key)
	if v == nil {
		return nil, nil
	}
	list, ok := v.GetKind().(*structpb.Value_ListValue)
	if !ok {
		return nil, apperror.Invalid(key, "must be a list")
	}
	out := make([]*structpb.Struct, 0, len(list.ListValue.GetValues()))
	for i, item := range list.ListValue.GetValues() {
		obj := item.GetStructValue()
		if obj == nil {
			return nil, apperror.Invalid(fmt.Sprintf("%s[%d]", key, i), "must be an object")
		}
		out = append(out, obj)
	}
	return out, nil
}

// Strings returns the strings in the list at key.
func Strings(s *structpb.Struct, key string) []string {
	var out []string
	for _, item := range field(s, key).GetListValue().GetValues() {
		out = append(out, item.GetStringValue())
	}
	return out
}
