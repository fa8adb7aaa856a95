package notify

import (
	"context"
	"strconv"

	"github.com/saiset-co/servicehub-client/types"
)

type Identity interface {
	Current() types.Session
}

type ManagerCache interface {
	GetCachedBranchName() string
	RefreshTickets(ctx context.Context) bool
}

type EmployeeCache interface {
	ClearScheduleCache()
	LoadSchedule(ctx context.Context, force bool, cb types.Callback[[]types.ScheduledTicket]) bool
	ClearTicketCache()
	LoadTickets(ctx context.Context, force bool, cb types.Callback[[]types.Ticket]) bool
}

// NewManagerListener watches the tickets of the manager's branch and
// refreshes the manager ticket cache on every change.
func NewManagerListener(opts ListenerOptions, cache ManagerCache, identity Identity) *Listener {
	opts = opts.withDefaults()

	resolve := func() string {
		branch := cache.GetCachedBranchName()
		if branch != "" && branch != types.NoBranchAssigned {
			return branch
		}
		return identity.Current().Branch
	}

	return NewListener("manager", opts, "branch", resolve, func(ctx context.Context, _ []types.ChangeEvent) {
		if !cache.RefreshTickets(ctx) {
			opts.Logger.Debug("Manager ticket refresh already running")
		}
	})
}

// NewEmployeeScheduleListener reloads the schedule whenever a ticket
// assigned to the signed-in employee changes.
func NewEmployeeScheduleListener(opts ListenerOptions, cache EmployeeCache, identity Identity, handler types.ScheduleChangeHandler) *Listener {
	opts = opts.withDefaults()

	resolve := func() string {
		return identity.Current().Name
	}

	return NewListener("employee_schedule", opts, "assigned_staff", resolve, func(ctx context.Context, _ []types.ChangeEvent) {
		cache.ClearScheduleCache()

		var cb types.Callback[[]types.ScheduledTicket]
		if handler != nil {
			cb = types.CallbackFuncs[[]types.ScheduledTicket]{
				Success: handler.OnScheduleChanged,
				Error:   handler.OnError,
			}
		}

		if !cache.LoadSchedule(ctx, true, cb) {
			opts.Logger.Debug("Schedule reload already running")
		}
	})
}

// NewEmployeeTicketListener reports each change to handler and refreshes
// the employee ticket cache.
func NewEmployeeTicketListener(opts ListenerOptions, cache EmployeeCache, identity Identity, handler types.TicketChangeHandler) *Listener {
	opts = opts.withDefaults()

	return NewListener("employee_tickets", opts, "assignedTo", userIDOf(identity), func(ctx context.Context, changes []types.ChangeEvent) {
		dispatchTicketChanges(handler, changes)

		cache.ClearTicketCache()
		if !cache.LoadTickets(ctx, true, nil) {
			opts.Logger.Debug("Ticket reload already running")
		}
	})
}

// NewCustomerTicketListener only reports changes; customer data is not
// cached.
func NewCustomerTicketListener(opts ListenerOptions, identity Identity, handler types.TicketChangeHandler) *Listener {
	return NewListener("customer_tickets", opts, "customerId", userIDOf(identity), func(_ context.Context, changes []types.ChangeEvent) {
		dispatchTicketChanges(handler, changes)
	})
}

func userIDOf(identity Identity) func() string {
	return func() string {
		id := identity.Current().UserID
		if id <= 0 {
			return ""
		}
		return strconv.Itoa(id)
	}
}

func dispatchTicketChanges(handler types.TicketChangeHandler, changes []types.ChangeEvent) {
	if handler == nil {
		return
	}

	for _, change := range changes {
		switch change.Type {
		case types.ChangeAdded:
			handler.OnTicketAssigned(change)
		case types.ChangeModified:
			handler.OnTicketUpdated(change)
			if change.Status != "" {
				handler.OnTicketStatusChanged(change.TicketID, change.Status)
			}
		case types.ChangeRemoved:
			handler.OnTicketRemoved(change)
		}
	}
}
