package handler

import (
	"net/http"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"fastmedia/gateway/internal/utils"
)

// ServiceName gRPC 健康检查使用的服务名
const ServiceName = "fastmedia.Gateway"

// NewGRPCServer 创建只承载健康检查的 gRPC 服务
func NewGRPCServer() (*grpc.Server, *health.Server) {
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return srv, hs
}

// kindToCode 错误类别映射为 gRPC 状态码
func kindToCode(kind utils.ErrorKind) codes.Code {
	switch kind {
	case utils.KindUnsupportedPlatform:
		return codes.InvalidArgument
	case utils.KindNetworkTimeout:
		return codes.DeadlineExceeded
	case utils.KindRegionRestricted, utils.KindPrivate:
		return codes.PermissionDenied
	case utils.KindPlaylistFailed:
		return codes.FailedPrecondition
	case utils.KindAPILimited:
		return codes.ResourceExhausted
	case utils.KindUnavailable, utils.KindTempFileMissing:
		return codes.NotFound
	case "":
		return codes.OK
	default:
		return codes.Unknown
	}
}

// StatusError 把内部错误转换为带用户提示的 gRPC 状态
func StatusError(err error) error {
	if err == nil {
		return nil
	}
	return status.Error(kindToCode(utils.KindOf(err)), utils.UserMessage(err))
}

// httpStatus gRPC 状态码对应的 HTTP 状态码
func httpStatus(code codes.Code) int {
	switch code {
	case codes.OK:
		return http.StatusOK
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.FailedPrecondition:
		return http.StatusUnprocessableEntity
	case codes.NotFound:
		return http.StatusNotFound
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unknown:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
