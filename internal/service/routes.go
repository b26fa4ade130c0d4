package service

import (
	"github.com/shaharia-lab/notifier/internal/contracts"
	"github.com/shaharia-lab/notifier/internal/dispatch"
)

// Routes binds the method names to svc.
func Routes(svc NotificationService) dispatch.Routes {
	return dispatch.Routes{
		contracts.MethodSubscribe:   dispatch.Handle(svc.Subscribe),
		contracts.MethodUnsubscribe: dispatch.Handle(svc.Unsubscribe),
		contracts.MethodNotify:      dispatch.Handle(svc.Notify),
	}
}
