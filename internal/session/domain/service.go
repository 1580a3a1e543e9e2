package domain

import "context"

type Registry interface {
	Login(ctx context.Context, identity string, conn Conn) (*Session, error)
	Logout(ctx context.Context, identity string) error
	Disconnect(ctx context.Context, identity string) error
	Release(ctx context.Context, identity string, conn Conn) bool
	Redeliver(ctx context.Context, identity string, conn Conn) (int, error)
	IsReachable(identity string) bool
	Get(identity string) (Session, bool)
	Users() []Session
	PostMessage(ctx context.Context, identity, text string) (Outcome, error)
	SendMessage(ctx context.Context, identity, text string) (Outcome, error)
}
