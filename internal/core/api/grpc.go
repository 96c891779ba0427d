package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/scorekeeper/internal/types"
)

// Fully qualified gRPC method names.
const (
	ScoringAPIServiceName         = "scorekeeper.v1.ScoringAPI"
	ScoringAPIParseFullMethod     = "/" + ScoringAPIServiceName + "/Parse"
	ScoringAPICalculateFullMethod = "/" + ScoringAPIServiceName + "/Calculate"
)

// ScoringAPIServer is the gRPC surface of the scoring API. Requests and
// responses are google.protobuf.Struct values with the same field names as
// the HTTP JSON bodies.
type ScoringAPIServer interface {
	Parse(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Calculate(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ScoringAPIServiceDesc describes ScoringAPI for grpc.Server registration.
var ScoringAPIServiceDesc = grpc.ServiceDesc{
	ServiceName: ScoringAPIServiceName,
	HandlerType: (*ScoringAPIServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Parse", Handler: scoringParseHandler},
		{MethodName: "Calculate", Handler: scoringCalculateHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "scorekeeper/v1/scoring.proto",
}

// RegisterScoringAPIServer registers srv on s.
func RegisterScoringAPIServer(s grpc.ServiceRegistrar, srv ScoringAPIServer) {
	s.RegisterService(&ScoringAPIServiceDesc, srv)
}

func scoringParseHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ScoringAPIServer).Parse(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ScoringAPIParseFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ScoringAPIServer).Parse(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func scoringCalculateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ScoringAPIServer).Calculate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ScoringAPICalculateFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ScoringAPIServer).Calculate(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// ScoringAPIClient calls ScoringAPI over a client connection.
type ScoringAPIClient struct {
	cc grpc.ClientConnInterface
}

// NewScoringAPIClient creates a client on cc.
func NewScoringAPIClient(cc grpc.ClientConnInterface) *ScoringAPIClient {
	return &ScoringAPIClient{cc: cc}
}

// Parse calls ScoringAPI.Parse.
func (c *ScoringAPIClient) Parse(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ScoringAPIParseFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Calculate calls ScoringAPI.Calculate.
func (c *ScoringAPIClient) Calculate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ScoringAPICalculateFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

var _ ScoringAPIServer = (*Service)(nil)

// Parse implements ScoringAPIServer.
func (s *Service) Parse(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in ParseRequest
	if err := FromStruct(req, &in); err != nil {
		return nil, err
	}

	doc, err := s.engine.Parse(ctx, in.Text)
	if err != nil {
		return nil, GRPCError(err)
	}
	return DocumentToStruct(doc)
}

// Calculate implements ScoringAPIServer.
func (s *Service) Calculate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := checkFormulaOrder(req); err != nil {
		return nil, err
	}
	var in CalculateRequest
	if err := FromStruct(req, &in); err != nil {
		return nil, err
	}
	if in.AST == nil {
		return nil, GRPCError(fmt.Errorf("%w: ast is required", types.ErrUnknownDocumentShape))
	}

	res, err := s.engine.Evaluate(ctx, in.AST, in.Inputs)
	if err != nil {
		return nil, GRPCError(err)
	}
	return ToStruct(res)
}

// FromStruct decodes a Struct into dest through its JSON form. Whole
// numbers decode as json.Number so integer inputs stay integers.
func FromStruct(src *structpb.Struct, dest any) error {
	if src == nil {
		src = &structpb.Struct{}
	}
	raw, err := protojson.Marshal(src)
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(dest); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	return nil
}

// ToStruct encodes v as a Struct using its JSON form.
func ToStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

// DocumentToStruct encodes doc as a Struct. Struct fields have no order,
// so formulas are written as a list of {name, expr} entries.
func DocumentToStruct(doc *types.RuleDocument) (*structpb.Struct, error) {
	out, err := ToStruct(doc)
	if err != nil {
		return nil, err
	}
	if len(doc.Formulas) == 0 {
		return out, nil
	}

	values := make([]*structpb.Value, len(doc.Formulas))
	for i, nf := range doc.Formulas {
		values[i] = structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"name": structpb.NewStringValue(nf.Name),
			"expr": structpb.NewStringValue(nf.Expr),
		}})
	}
	out.Fields["formulas"] = structpb.NewListValue(&structpb.ListValue{Values: values})
	return out, nil
}

// checkFormulaOrder rejects ast.formulas sent as an object with more than
// one entry: the Struct has already lost their declaration order.
func checkFormulaOrder(req *structpb.Struct) error {
	formulas := req.GetFields()["ast"].GetStructValue().GetFields()["formulas"].GetStructValue()
	if len(formulas.GetFields()) > 1 {
		return status.Error(codes.InvalidArgument, "invalid request: ast.formulas must be a list of {name, expr} entries")
	}
	return nil
}
