package transport

import (
	"fmt"
	"net/http"
	"net/http/httptrace"
	"net/http/httputil"

	"github.com/sandchest/sandchest-go/internal/log"
)

var (
	printRequestTrace   = false
	printRequest        = false
	printRequestDetail  = false
	printResponse       = false
	printResponseDetail = false
)

// PrintRequestTrace 开关连接级别的请求跟踪日志（DNS、连接、TLS 等）。
func PrintRequestTrace(isPrint bool) {
	printRequestTrace = isPrint
}

// PrintRequest 开关请求行与请求头的调试输出。
func PrintRequest(isPrint bool) {
	printRequest = isPrint
}

// PrintRequestDetail 开关带请求体的完整请求调试输出。
func PrintRequestDetail(isPrint bool) {
	printRequestDetail = isPrint
}

// PrintResponse 开关响应行与响应头的调试输出。
func PrintResponse(isPrint bool) {
	printResponse = isPrint
}

// PrintResponseDetail 开关带响应体的完整响应调试输出。
func PrintResponseDetail(isPrint bool) {
	printResponseDetail = isPrint
}

type debugInterceptor struct {
}

func newDebugInterceptor() Interceptor {
	return &debugInterceptor{}
}

func (r *debugInterceptor) Priority() InterceptorPriority {
	return InterceptorPriorityDebug
}

func (r *debugInterceptor) Intercept(req *http.Request, handler Handler) (*http.Response, error) {
	label := r.requestLabel(req)

	if e := r.printRequest(label, req); e != nil {
		return nil, e
	}

	req = r.printRequestTrace(label, req)

	resp, err := handler(req)

	if e := r.printResponse(label, resp); e != nil {
		return nil, e
	}

	return resp, err
}

func (r *debugInterceptor) requestLabel(req *http.Request) string {
	if req == nil || req.URL == nil {
		return ""
	}
	return fmt.Sprintf("Url:%s", req.URL.String())
}

func (r *debugInterceptor) printRequest(label string, req *http.Request) error {
	if !printRequest && !printRequestDetail {
		return nil
	}

	info := label + " request:\n"
	i, dErr := httputil.DumpRequest(req, printRequestDetail)
	if dErr != nil {
		return dErr
	}
	info += string(i) + "\n"

	log.Debug(info)
	return nil
}

func (r *debugInterceptor) printRequestTrace(label string, req *http.Request) *http.Request {
	if !printRequestTrace {
		return req
	}

	label += "\n"
	trace := &httptrace.ClientTrace{
		GetConn: func(hostPort string) {
			log.Debug(label + fmt.Sprintf("GetConn, %s \n", hostPort))
		},
		GotConn: func(connInfo httptrace.GotConnInfo) {
			remoteAddr := connInfo.Conn.RemoteAddr()
			log.Debug(label + fmt.Sprintf("GotConn, Network:%s RemoteAddr:%s \n", remoteAddr.Network(), remoteAddr.String()))
		},
		DNSStart: func(info httptrace.DNSStartInfo) {
			log.Debug(label + fmt.Sprintf("DNSStart, host:%s \n", info.Host))
		},
		DNSDone: func(info httptrace.DNSDoneInfo) {
			log.Debug(label + fmt.Sprintf("DNSDone, addr:%+v \n", info.Addrs))
		},
		ConnectStart: func(network, addr string) {
			log.Debug(label + fmt.Sprintf("ConnectStart, network:%s ip:%s \n", network, addr))
		},
		ConnectDone: func(network, addr string, err error) {
			log.Debug(label + fmt.Sprintf("ConnectDone, network:%s ip:%s err:%v \n", network, addr, err))
		},
		TLSHandshakeStart: func() {
			log.Debug(label + "TLSHandshakeStart \n")
		},
		WroteRequest: func(info httptrace.WroteRequestInfo) {
			log.Debug(label + fmt.Sprintf("WroteRequest, err:%v \n", info.Err))
		},
	}
	return req.WithContext(httptrace.WithClientTrace(req.Context(), trace))
}

func (r *debugInterceptor) printResponse(label string, resp *http.Response) error {
	if resp == nil {
		return nil
	}

	if !printResponse && !printResponseDetail {
		return nil
	}

	info := label + " response:\n"
	i, dErr := httputil.DumpResponse(resp, printResponseDetail)
	if dErr != nil {
		return dErr
	}
	info += string(i) + "\n"

	log.Debug(info)
	return nil
}
