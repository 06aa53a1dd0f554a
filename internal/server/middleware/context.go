package middleware

import (
	"github.com/kinfolk-ai/kinfolk/internal/app"
	"github.com/kinfolk-ai/kinfolk/internal/queue"
	"github.com/kinfolk-ai/kinfolk/internal/storage"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/labstack/echo/v4"
)

type AppUser struct {
	UserID      int64
	Role        string
	Permissions []string
}

// App is shared by every request. Key, Queue and S3 may be nil; a nil Queue
// makes background jobs run inline.
type App struct {
	Kinfolk        *app.App
	Processor      *queue.Processor
	Queue          queue.Publisher
	Key            keyfunc.Keyfunc
	S3             *storage.Client
	MasterAPIKey   string
	MasterUserID   int64
	MasterUserRole string
}

// AppContext carries the application and the authenticated user.
type AppContext struct {
	echo.Context
	App  *App
	User *AppUser
}

func AppContextMiddleware(a *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, a, nil}
			return next(cc)
		}
	}
}
