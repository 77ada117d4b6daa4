package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/clinical-extract/constants"
	"github.com/joseph-ayodele/clinical-extract/internal/common"
	"github.com/joseph-ayodele/clinical-extract/internal/core"
	"github.com/joseph-ayodele/clinical-extract/internal/patterns"
)

// ExtractionServiceName is the fully qualified gRPC service name.
const ExtractionServiceName = "clinical.v1.ExtractionService"

// ExtractionServer uses well-known types for its messages so the service
// needs no generated code:
//
//	Extract(Struct{patterns?, documents:[{name, content}], normalize?, file_column?, file_column_name?})
//	  -> Struct{run_id, columns, rows, documents}
//	DefaultPatterns(Empty) -> Struct{fields, patterns}
//
// patterns is either a table object or the table as JSON/YAML text; only the
// text form keeps field order. content is base64.
type ExtractionServer interface {
	Extract(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DefaultPatterns(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

var ExtractionServiceDesc = grpc.ServiceDesc{
	ServiceName: ExtractionServiceName,
	HandlerType: (*ExtractionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Extract", Handler: extractHandler},
		{MethodName: "DefaultPatterns", Handler: defaultPatternsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "clinical/v1/extraction.proto",
}

func RegisterExtractionServer(s grpc.ServiceRegistrar, srv ExtractionServer) {
	s.RegisterService(&ExtractionServiceDesc, srv)
}

func extractHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ExtractionServer).Extract(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ExtractionServiceName + "/Extract"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ExtractionServer).Extract(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func defaultPatternsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ExtractionServer).DefaultPatterns(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ExtractionServiceName + "/DefaultPatterns"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ExtractionServer).DefaultPatterns(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// GRPCServer adapts Service to ExtractionServer.
type GRPCServer struct {
	svc    *Service
	logger *slog.Logger
}

func NewGRPCServer(svc *Service, logger *slog.Logger) *GRPCServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &GRPCServer{svc: svc, logger: logger}
}

// NewGRPC builds a grpc.Server with the extraction and health services.
func NewGRPC(svc *Service, logger *slog.Logger, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	s := grpc.NewServer(opts...)
	RegisterExtractionServer(s, NewGRPCServer(svc, logger))

	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(s, hs)
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ExtractionServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	return s, hs
}

func (s *GRPCServer) Extract(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := runRequestFromStruct(in)
	if err != nil {
		return nil, common.ToGRPCError(err)
	}
	if err := common.ValidateAndReturnError(req.Validate()); err != nil {
		return nil, err
	}
	sub, err := s.svc.Submit(ctx, req)
	if err != nil {
		s.logger.Warn("grpc extract failed", "error", err)
		return nil, common.ToGRPCError(err)
	}
	out, err := resultToStruct(sub.Result)
	if err != nil {
		return nil, common.InternalErrorf("encode result: %v", err)
	}
	return out, nil
}

func (s *GRPCServer) DefaultPatterns(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	t := s.svc.DefaultPatterns()
	table := make(map[string]any, t.Len())
	order := make([]any, 0, t.Len())
	for _, f := range t.Fields() {
		order = append(order, f)
		list := make([]any, 0)
		for _, p := range t.Patterns(f) {
			list = append(list, p)
		}
		table[f] = list
	}
	out, err := structpb.NewStruct(map[string]any{"fields": order, "patterns": table})
	if err != nil {
		return nil, common.InternalErrorf("encode patterns: %v", err)
	}
	return out, nil
}

func runRequestFromStruct(in *structpb.Struct) (RunRequest, error) {
	var req RunRequest
	f := in.GetFields()

	if v, ok := f["patterns"]; ok {
		var src patterns.Source
		switch k := v.GetKind().(type) {
		case *structpb.Value_StringValue:
			src = patterns.TextSource(k.StringValue, patternFormat("", "", []byte(k.StringValue)))
		case *structpb.Value_StructValue:
			data, err := json.Marshal(k.StructValue.AsMap())
			if err != nil {
				return req, err
			}
			src = patterns.TextSource(string(data), constants.PatternsJSON)
		case *structpb.Value_NullValue:
		default:
			return req, common.InvalidPatternFormatError("patterns must be an object or a string")
		}
		if src.Data != nil {
			t, err := patterns.Load(src)
			if err != nil {
				return req, err
			}
			req.Table = t
		}
	}

	for _, dv := range f["documents"].GetListValue().GetValues() {
		d := dv.GetStructValue().GetFields()
		name := d["name"].GetStringValue()
		content, err := base64.StdEncoding.DecodeString(d["content"].GetStringValue())
		if err != nil {
			return req, common.NewAppError(common.CodeInvalidInput, "document "+name+": content must be base64", common.ErrInvalidInput)
		}
		req.Documents = append(req.Documents, core.Document{Name: name, Content: content})
	}

	if v, ok := f["normalize"]; ok {
		b := v.GetBoolValue()
		req.Normalize = &b
	}
	if v, ok := f["file_column"]; ok {
		b := v.GetBoolValue()
		req.FileColumn = &b
	}
	req.FileColumnName = f["file_column_name"].GetStringValue()
	return req, nil
}

func resultToStruct(res *core.RunResult) (*structpb.Struct, error) {
	cols := make([]any, len(res.Columns))
	for i, c := range res.Columns {
		cols[i] = c
	}
	rows := make([]any, len(res.Rows))
	for i, row := range res.Rows {
		m := make(map[string]any, len(row))
		for k, v := range row {
			if v == nil {
				m[k] = nil
			} else {
				m[k] = *v
			}
		}
		rows[i] = m
	}
	docs := make([]any, len(res.Documents))
	for i, d := range res.Documents {
		docs[i] = map[string]any{
			"name":       d.Name,
			"method":     d.Method,
			"chars":      d.Chars,
			"pages":      d.Pages,
			"unreadable": d.Unreadable,
			"matched":    d.Matched,
		}
	}
	return structpb.NewStruct(map[string]any{
		"run_id":    res.RunID.String(),
		"columns":   cols,
		"rows":      rows,
		"documents": docs,
	})
}
