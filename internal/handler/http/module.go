package httphandler

import (
	httpsrv "github.com/webitel/im-private-chat/infra/server/http"
	"go.uber.org/fx"
)

const Prefix = "/api"

var Module = fx.Module("delivery-http",
	fx.Provide(NewRESTHandler),
	fx.Invoke(RegisterRoutes),
)

func RegisterRoutes(server *httpsrv.Server, h *RESTHandler) {
	server.Router.Mount(Prefix, h.Routes())
}
