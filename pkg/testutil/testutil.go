package testutil

import (
	"github.com/screenlogapp/screenlog/internal/controller/activity"
	"github.com/screenlogapp/screenlog/internal/controller/comments"
	"github.com/screenlogapp/screenlog/internal/controller/ledger"
	"github.com/screenlogapp/screenlog/internal/controller/lists"
	"github.com/screenlogapp/screenlog/internal/controller/notification"
	"github.com/screenlogapp/screenlog/internal/controller/profile"
	"github.com/screenlogapp/screenlog/internal/controller/social"
	"github.com/screenlogapp/screenlog/internal/store/memory"
	"github.com/uber-go/tally/v4"
	"go.uber.org/zap"
)

// Core bundles every controller wired over a fresh in-memory store, to be
// used in tests.
type Core struct {
	Store         *memory.Store
	Activity      *activity.Controller
	Notifications *notification.Controller
	Ledger        *ledger.Controller
	Social        *social.Controller
	Lists         *lists.Controller
	Comments      *comments.Controller
	Profiles      *profile.Controller
}

// NewTestCore creates a fully wired core over an in-memory store.
func NewTestCore() *Core {
	st := memory.New()
	logger := zap.NewNop()
	scope := tally.NoopScope
	activityCtrl := activity.New(st, scope)
	notificationCtrl := notification.New(st, scope)
	return &Core{
		Store:         st,
		Activity:      activityCtrl,
		Notifications: notificationCtrl,
		Ledger:        ledger.New(st, activityCtrl, logger),
		Social:        social.New(st, notificationCtrl, logger),
		Lists:         lists.New(st),
		Comments:      comments.New(st, notificationCtrl, logger),
		Profiles:      profile.New(st),
	}
}
