package types

// DataKind names one cached data category.
type DataKind string

const (
	KindTickets   DataKind = "tickets"
	KindEmployees DataKind = "employees"
	KindSchedule  DataKind = "schedule"
	KindDashboard DataKind = "dashboard"
)

// InFlightPolicy decides what happens to a caller that arrives while a
// load of the same kind is still running.
type InFlightPolicy string

const (
	// InFlightDrop never answers the late caller.
	InFlightDrop InFlightPolicy = "drop"
	// InFlightJoin answers the late caller with the running load's result.
	InFlightJoin InFlightPolicy = "join"
)

func ParseInFlightPolicy(s string) (InFlightPolicy, error) {
	switch InFlightPolicy(s) {
	case InFlightDrop:
		return InFlightDrop, nil
	case InFlightJoin:
		return InFlightJoin, nil
	default:
		return "", Errorf(ErrCachePolicyUnknown, "policy: %s", s)
	}
}

type Callback[T any] interface {
	OnSuccess(data T)
	OnError(err error)
}

// CallbackFuncs adapts two functions to Callback.
type CallbackFuncs[T any] struct {
	Success func(data T)
	Error   func(err error)
}

func (c CallbackFuncs[T]) OnSuccess(data T) {
	if c.Success != nil {
		c.Success(data)
	}
}

func (c CallbackFuncs[T]) OnError(err error) {
	if c.Error != nil {
		c.Error(err)
	}
}

// EmployeeDataChangeListener implementations must be comparable, usually a
// pointer; the registry deduplicates by identity and rejects the rest.
type EmployeeDataChangeListener interface {
	OnEmployeeDataChanged(branch string, employees []Employee)
}

// DataLoadCallback receives each part of a combined manager load.
type DataLoadCallback interface {
	OnEmployeesLoaded(branch string, employees []Employee)
	OnTicketsLoaded(tickets []Ticket)
	OnDashboardStatsLoaded(stats DashboardStats, recent []RecentTicket)
	OnLoadComplete()
	OnLoadError(err error)
}
