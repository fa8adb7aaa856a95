package client

import (
	"context"
	"net/url"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/valyala/fasthttp"

	"github.com/saiset-co/servicehub-client/types"
)

const (
	pathLogin          = "api/v1/login"
	pathRegister       = "api/v1/register"
	pathLogout         = "api/v1/logout"
	pathUser           = "api/v1/user"
	pathUserUpdate     = "api/v1/user/update"
	pathChangePassword = "api/v1/change-password"
	pathTickets        = "api/v1/tickets"
	pathManagerTickets = "api/v1/manager/tickets"
	pathManagerBoard   = "api/v1/manager/dashboard"
	pathManagerPayment = "api/v1/manager/payments"
	pathEmployees      = "api/v1/employees"
	pathEmployeeTicket = "api/v1/employee/tickets"
	pathEmployeeSched  = "api/v1/employee/schedule"
	pathPaymentConfirm = "api/v1/payments/confirm"
	pathPaymentRequest = "api/v1/payments/request"
)

// API binds every REST endpoint to a typed method.
type API struct {
	http      types.Requester
	validator *validator.Validate
}

func NewAPI(http types.Requester) *API {
	return &API{
		http:      http,
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) Login(ctx context.Context, req *types.LoginRequest) (*types.AuthData, error) {
	if err := a.validate(req); err != nil {
		return nil, err
	}

	var resp types.LoginResponse
	if err := a.call(ctx, "auth.login", fasthttp.MethodPost, pathLogin, nil, req, false, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil || resp.Data.Token == "" {
		return nil, types.NewLogicalError(fasthttp.StatusOK, "login response carries no token")
	}
	return resp.Data, nil
}

func (a *API) Register(ctx context.Context, req *types.RegisterRequest) (*types.AuthData, error) {
	if err := a.validate(req); err != nil {
		return nil, err
	}

	var resp types.RegisterResponse
	if err := a.call(ctx, "auth.register", fasthttp.MethodPost, pathRegister, nil, req, false, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, types.NewLogicalError(fasthttp.StatusOK, "register response carries no data")
	}
	return resp.Data, nil
}

func (a *API) Logout(ctx context.Context) error {
	var resp types.LogoutResponse
	return a.call(ctx, "auth.logout", fasthttp.MethodPost, pathLogout, nil, nil, true, &resp)
}

func (a *API) User(ctx context.Context) (*types.User, error) {
	var resp types.UserResponse
	if err := a.call(ctx, "user.get", fasthttp.MethodGet, pathUser, nil, nil, true, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, types.NewLogicalError(fasthttp.StatusOK, "user response carries no data")
	}
	return resp.Data, nil
}

func (a *API) UpdateUser(ctx context.Context, req *types.UpdateProfileRequest) (*types.User, error) {
	var resp types.UserResponse
	if err := a.call(ctx, "user.update", fasthttp.MethodPost, pathUserUpdate, nil, req, true, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (a *API) ChangePassword(ctx context.Context, req *types.ChangePasswordRequest) error {
	if err := a.validate(req); err != nil {
		return err
	}

	var resp types.ChangePasswordResponse
	return a.call(ctx, "user.change_password", fasthttp.MethodPost, pathChangePassword, nil, req, true, &resp)
}

// Tickets lists the caller's tickets, optionally filtered by status.
func (a *API) Tickets(ctx context.Context, status string) ([]types.Ticket, error) {
	var resp types.TicketListResponse
	if err := a.call(ctx, "tickets.list", fasthttp.MethodGet, pathTickets, statusQuery(status), nil, true, &resp); err != nil {
		return nil, err
	}
	return resp.Tickets, nil
}

func (a *API) TicketDetail(ctx context.Context, ticketID string) (*types.Ticket, error) {
	var resp types.TicketDetailResponse
	if err := a.call(ctx, "tickets.detail", fasthttp.MethodGet, ticketPath(ticketID, ""), nil, nil, true, &resp); err != nil {
		return nil, err
	}
	if resp.Ticket == nil {
		return nil, types.NewLogicalError(fasthttp.StatusOK, "ticket not found")
	}
	return resp.Ticket, nil
}

func (a *API) CreateTicket(ctx context.Context, req *types.CreateTicketRequest) (*types.CreateTicketResponse, error) {
	if err := a.validate(req); err != nil {
		return nil, err
	}

	var resp types.CreateTicketResponse
	if err := a.call(ctx, "tickets.create", fasthttp.MethodPost, pathTickets, nil, req, true, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateTicketWithImage sends the ticket as multipart/form-data with the
// photo in the "image" part.
func (a *API) CreateTicketWithImage(ctx context.Context, req *types.CreateTicketRequest, fileName string, image []byte) (*types.CreateTicketResponse, error) {
	if err := a.validate(req); err != nil {
		return nil, err
	}

	fields := map[string]string{
		"title":        req.Title,
		"description":  req.Description,
		"service_type": req.ServiceType,
		"address":      req.Address,
		"contact":      req.Contact,
	}
	if req.UnitType != "" {
		fields["unit_type"] = req.UnitType
	}
	if req.PreferredDate != "" {
		fields["preferred_date"] = req.PreferredDate
	}
	if req.Latitude != 0 || req.Longitude != 0 {
		fields["latitude"] = strconv.FormatFloat(req.Latitude, 'f', -1, 64)
		fields["longitude"] = strconv.FormatFloat(req.Longitude, 'f', -1, 64)
	}
	if req.Amount > 0 {
		fields["amount"] = strconv.FormatFloat(req.Amount, 'f', 2, 64)
	}

	var resp types.CreateTicketResponse
	err := a.http.Do(ctx, &types.Request{
		Name:   "tickets.create_with_image",
		Method: fasthttp.MethodPost,
		Path:   pathTickets,
		Form: &types.MultipartForm{
			Fields:    fields,
			FileField: "image",
			FileName:  fileName,
			FileData:  image,
		},
		Auth: true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (a *API) UpdateTicketStatus(ctx context.Context, ticketID string, req *types.UpdateTicketStatusRequest) (*types.UpdateTicketStatusResponse, error) {
	if err := a.validate(req); err != nil {
		return nil, err
	}

	var resp types.UpdateTicketStatusResponse
	if err := a.call(ctx, "tickets.update_status", fasthttp.MethodPut, ticketPath(ticketID, "status"), nil, req, true, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (a *API) AcceptTicket(ctx context.Context, ticketID string) (*types.TicketStatus, error) {
	return a.ticketTransition(ctx, "tickets.accept", ticketID, "accept")
}

func (a *API) RejectTicket(ctx context.Context, ticketID string) (*types.TicketStatus, error) {
	return a.ticketTransition(ctx, "tickets.reject", ticketID, "reject")
}

func (a *API) ticketTransition(ctx context.Context, name, ticketID, action string) (*types.TicketStatus, error) {
	var resp types.TicketStatusResponse
	if err := a.call(ctx, name, fasthttp.MethodPost, ticketPath(ticketID, action), nil, nil, true, &resp); err != nil {
		return nil, err
	}
	return resp.Ticket, nil
}

func (a *API) SetTicketSchedule(ctx context.Context, ticketID string, req *types.SetScheduleRequest) (*types.SetScheduleResponse, error) {
	if err := a.validate(req); err != nil {
		return nil, err
	}

	var resp types.SetScheduleResponse
	if err := a.call(ctx, "tickets.schedule", fasthttp.MethodPut, ticketPath(ticketID, "schedule"), nil, req, true, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (a *API) CompleteWork(ctx context.Context, ticketID string, req *types.CompleteWorkRequest) (*types.CompleteWorkResponse, error) {
	if err := a.validate(req); err != nil {
		return nil, err
	}

	var resp types.CompleteWorkResponse
	if err := a.call(ctx, "tickets.complete_work", fasthttp.MethodPost, ticketPath(ticketID, "complete-work"), nil, req, true, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (a *API) ManagerTickets(ctx context.Context) ([]types.Ticket, error) {
	var resp types.TicketListResponse
	if err := a.call(ctx, "manager.tickets", fasthttp.MethodGet, pathManagerTickets, nil, nil, true, &resp); err != nil {
		return nil, err
	}
	return resp.Tickets, nil
}

func (a *API) ManagerDashboard(ctx context.Context) (types.Dashboard, error) {
	var resp types.DashboardStatsResponse
	if err := a.call(ctx, "manager.dashboard", fasthttp.MethodGet, pathManagerBoard, nil, nil, true, &resp); err != nil {
		return types.Dashboard{}, err
	}

	dashboard := types.Dashboard{Recent: resp.RecentTickets}
	if resp.Stats != nil {
		dashboard.Stats = *resp.Stats
	}
	return dashboard, nil
}

func (a *API) Employees(ctx context.Context) (types.EmployeeRoster, error) {
	var resp types.EmployeeResponse
	if err := a.call(ctx, "manager.employees", fasthttp.MethodGet, pathEmployees, nil, nil, true, &resp); err != nil {
		return types.EmployeeRoster{}, err
	}
	return types.EmployeeRoster{Branch: resp.Branch, Employees: resp.Employees}, nil
}

func (a *API) PaymentHistory(ctx context.Context) ([]types.Payment, error) {
	var resp types.PaymentHistoryResponse
	if err := a.call(ctx, "manager.payments", fasthttp.MethodGet, pathManagerPayment, nil, nil, true, &resp); err != nil {
		return nil, err
	}
	return resp.Payments, nil
}

func (a *API) EmployeeTickets(ctx context.Context, status string) ([]types.Ticket, error) {
	var resp types.TicketListResponse
	if err := a.call(ctx, "employee.tickets", fasthttp.MethodGet, pathEmployeeTicket, statusQuery(status), nil, true, &resp); err != nil {
		return nil, err
	}
	return resp.Tickets, nil
}

func (a *API) EmployeeSchedule(ctx context.Context) ([]types.ScheduledTicket, error) {
	var resp types.EmployeeScheduleResponse
	if err := a.call(ctx, "employee.schedule", fasthttp.MethodGet, pathEmployeeSched, nil, nil, true, &resp); err != nil {
		return nil, err
	}
	return resp.Tickets, nil
}

func (a *API) PaymentDetail(ctx context.Context, ticketID string) (*types.Payment, error) {
	var resp types.PaymentDetailResponse
	if err := a.call(ctx, "payments.detail", fasthttp.MethodGet, ticketPath(ticketID, "payment"), nil, nil, true, &resp); err != nil {
		return nil, err
	}
	if resp.Payment == nil {
		return nil, types.NewLogicalError(fasthttp.StatusOK, "payment not found")
	}
	return resp.Payment, nil
}

func (a *API) ConfirmPayment(ctx context.Context, req *types.PaymentConfirmationRequest) (*types.PaymentConfirmationResponse, error) {
	if err := a.validate(req); err != nil {
		return nil, err
	}

	var resp types.PaymentConfirmationResponse
	if err := a.call(ctx, "payments.confirm", fasthttp.MethodPost, pathPaymentConfirm, nil, req, true, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (a *API) RequestPayment(ctx context.Context, req *types.PaymentRequest) (*types.PaymentRequestResponse, error) {
	if err := a.validate(req); err != nil {
		return nil, err
	}

	var resp types.PaymentRequestResponse
	if err := a.call(ctx, "payments.request", fasthttp.MethodPost, pathPaymentRequest, nil, req, true, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (a *API) SubmitPaymentToManager(ctx context.Context, paymentID int) (*types.CompleteWorkResponse, error) {
	return a.paymentTransition(ctx, "payments.submit", paymentID, "submit")
}

func (a *API) CompletePayment(ctx context.Context, paymentID int) (*types.CompleteWorkResponse, error) {
	return a.paymentTransition(ctx, "payments.complete", paymentID, "complete")
}

func (a *API) paymentTransition(ctx context.Context, name string, paymentID int, action string) (*types.CompleteWorkResponse, error) {
	if paymentID <= 0 {
		return nil, types.Errorf(types.ErrRequestInvalid, "payment id %d", paymentID)
	}

	var resp types.CompleteWorkResponse
	path := "api/v1/payments/" + strconv.Itoa(paymentID) + "/" + action
	if err := a.call(ctx, name, fasthttp.MethodPost, path, nil, nil, true, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (a *API) call(ctx context.Context, name, method, path string, query map[string]string, body interface{}, auth bool, out interface{}) error {
	req := &types.Request{
		Name:   name,
		Method: method,
		Path:   path,
		Query:  query,
		Auth:   auth,
	}
	if body != nil {
		req.Body = body
	}
	return a.http.Do(ctx, req, out)
}

func (a *API) validate(req interface{}) error {
	if err := a.validator.Struct(req); err != nil {
		return types.Errorf(types.ErrRequestInvalid, "%v", err)
	}
	return nil
}

func ticketPath(ticketID, action string) string {
	path := pathTickets + "/" + url.PathEscape(ticketID)
	if action != "" {
		path += "/" + action
	}
	return path
}

func statusQuery(status string) map[string]string {
	if status == "" {
		return nil
	}
	return map[string]string{"status": status}
}
