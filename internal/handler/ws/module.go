package ws

import (
	httpsrv "github.com/webitel/im-private-chat/infra/server/http"
	"go.uber.org/fx"
)

const Path = "/ws"

var Module = fx.Module("delivery-ws",
	fx.Provide(NewWSHandler),
	fx.Invoke(RegisterRoutes),
)

func RegisterRoutes(server *httpsrv.Server, h *WSHandler) {
	server.Router.Handle(Path, h)
}
