package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	servicehub "github.com/saiset-co/servicehub-client"
	"github.com/saiset-co/servicehub-client/health"
	"github.com/saiset-co/servicehub-client/schedule"
	"github.com/saiset-co/servicehub-client/types"
)

var (
	loginEmail    string
	loginPassword string
	ticketStatus  string
	scheduleMonth string
	scheduleDay   string
)

var loginCmd = &cobra.Command{
	Use:     "login",
	Short:   "Sign in and store the session",
	Example: "hubctl login --email ana@example.com",
	RunE: func(cmd *cobra.Command, args []string) error {
		if loginEmail == "" {
			return fmt.Errorf("--email is required")
		}

		password := loginPassword
		if password == "" {
			var err error
			if password, err = readPassword(cmd); err != nil {
				return err
			}
		}

		return withHub(cmd, func(ctx context.Context, hub *servicehub.Hub) error {
			auth, err := hub.Login(ctx, loginEmail, password)
			if err != nil {
				return err
			}

			name, role := "", ""
			if auth.User != nil {
				name, role = auth.User.DisplayName(), auth.User.Role
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s)\n", name, role)
			return nil
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHub(cmd, func(ctx context.Context, hub *servicehub.Hub) error {
			if err := hub.Logout(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		})
	},
}

var ticketsCmd = &cobra.Command{
	Use:   "tickets",
	Short: "List tickets for the signed-in role",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHub(cmd, func(ctx context.Context, hub *servicehub.Hub) error {
			tickets, err := loadTickets(ctx, hub)
			if err != nil {
				return err
			}
			printTickets(cmd.OutOrStdout(), tickets)
			return nil
		})
	},
}

var employeesCmd = &cobra.Command{
	Use:   "employees",
	Short: "List the employees of the manager's branch",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHub(cmd, func(ctx context.Context, hub *servicehub.Hub) error {
			roster, err := hub.ManagerData().Employees(ctx, false)
			if err != nil {
				return err
			}
			printRoster(cmd.OutOrStdout(), roster)
			return nil
		})
	},
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show manager dashboard statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHub(cmd, func(ctx context.Context, hub *servicehub.Hub) error {
			board, err := hub.ManagerData().Dashboard(ctx, false)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			stats := board.Stats
			fmt.Fprintf(out, "Total %d  Pending %d  In progress %d  Completed %d  Cancelled %d\n",
				stats.TotalTickets, stats.Pending, stats.InProgress, stats.Completed, stats.Cancelled)

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TICKET\tSTATUS")
			for _, t := range board.Recent {
				fmt.Fprintf(w, "%s\t%s\n", t.TicketID, t.Status)
			}
			return w.Flush()
		})
	},
}

var scheduleCmd = &cobra.Command{
	Use:     "schedule",
	Short:   "Render the employee schedule as a month grid",
	Example: "hubctl schedule --month 2024-03 --day 2024-03-05",
	RunE: func(cmd *cobra.Command, args []string) error {
		now := time.Now()
		year, month := now.Year(), now.Month()
		if scheduleMonth != "" {
			t, err := time.Parse("2006-01", scheduleMonth)
			if err != nil {
				return fmt.Errorf("--month must look like 2024-03: %w", err)
			}
			year, month = t.Year(), t.Month()
		}

		return withHub(cmd, func(ctx context.Context, hub *servicehub.Hub) error {
			tickets, err := hub.EmployeeData().Schedule(ctx, false)
			if err != nil {
				return err
			}

			grid := schedule.BuildMonth(year, month, schedule.GroupByDate(tickets))
			selected := grid.DefaultSelection(schedule.NormalizeDateKey(scheduleDay), now)

			out := cmd.OutOrStdout()
			printMonth(out, grid, selected)
			printDay(out, selected, grid.TicketsOn(selected))
			return nil
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report session, API and notification health",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHub(cmd, func(ctx context.Context, hub *servicehub.Hub) error {
			printHealth(cmd.OutOrStdout(), hub.Health(ctx))
			return nil
		})
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow ticket changes until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		printer := &changePrinter{out: out}

		return withHub(cmd, func(ctx context.Context, hub *servicehub.Hub) error {
			if !hub.Session().IsLoggedIn() {
				return types.ErrNotAuthenticated
			}

			cancelEmployee := hub.EmployeeData().SubscribeTickets(func(tickets []types.Ticket) {
				fmt.Fprintf(out, "-- %d tickets --\n", len(tickets))
				printTickets(out, tickets)
			})
			defer cancelEmployee()

			cancelManager := hub.ManagerData().SubscribeTickets(func(tickets []types.Ticket) {
				fmt.Fprintf(out, "-- %d branch tickets --\n", len(tickets))
				printTickets(out, tickets)
			})
			defer cancelManager()

			if !hub.Listening() {
				if err := hub.StartListeners(); err != nil {
					return err
				}
			}

			fmt.Fprintln(out, "Watching for changes, press Ctrl+C to stop")
			<-ctx.Done()
			return nil
		}, servicehub.WithTicketChangeHandler(printer), servicehub.WithScheduleChangeHandler(printer), servicehub.WithConnectionStateListener(printer))
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "account email")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "account password (prompted when empty)")
	ticketsCmd.Flags().StringVar(&ticketStatus, "status", "", "employee ticket status filter")
	scheduleCmd.Flags().StringVar(&scheduleMonth, "month", "", "month to show, YYYY-MM")
	scheduleCmd.Flags().StringVar(&scheduleDay, "day", "", "day to list, YYYY-MM-DD")
}

func loadTickets(ctx context.Context, hub *servicehub.Hub) ([]types.Ticket, error) {
	switch strings.ToLower(hub.Session().Current().Role) {
	case types.RoleManager, types.RoleAdmin:
		return hub.ManagerData().Tickets(ctx, false)
	case types.RoleEmployee, types.RoleTechnician:
		if ticketStatus != "" {
			return hub.API().EmployeeTickets(ctx, ticketStatus)
		}
		return hub.EmployeeData().Tickets(ctx, false)
	default:
		return hub.API().Tickets(ctx, ticketStatus)
	}
}

func readPassword(cmd *cobra.Command) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("--password is required when stdin is not a terminal")
	}

	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func printTickets(out io.Writer, tickets []types.Ticket) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TICKET\tSTATUS\tSERVICE\tSTAFF\tSCHEDULED")
	for _, t := range tickets {
		when := strings.TrimSpace(t.ScheduledDate + " " + t.ScheduledTime)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.TicketID, t.Status, t.ServiceType, t.AssignedStaff, when)
	}
	_ = w.Flush()
}

func printHealth(out io.Writer, report health.Report) {
	fmt.Fprintf(out, "%s: %s\n", report.Service, report.Status)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, name := range report.Names() {
		check := report.Checks[name]
		fmt.Fprintf(w, "  %s\t%s\t%s\n", name, check.Status, check.Message)
	}
	_ = w.Flush()
}

func printRoster(out io.Writer, roster types.EmployeeRoster) {
	fmt.Fprintf(out, "Branch: %s\n", roster.BranchName())

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tROLE\tTICKETS")
	for _, e := range roster.Employees {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\n", e.ID, e.FullName(), e.Role, e.TicketCount)
	}
	_ = w.Flush()
}

func printMonth(out io.Writer, grid *schedule.Month, selected string) {
	fmt.Fprintf(out, "%s\n", grid.Title())
	fmt.Fprintln(out, " Su   Mo   Tu   We   Th   Fr   Sa")

	for _, week := range grid.Weeks() {
		var line strings.Builder
		for _, day := range week {
			switch {
			case !day.InMonth:
				line.WriteString("     ")
			case day.Key == selected:
				fmt.Fprintf(&line, "[%2d]%s", day.Day, marker(day))
			default:
				fmt.Fprintf(&line, " %2d %s", day.Day, marker(day))
			}
		}
		fmt.Fprintln(out, strings.TrimRight(line.String(), " "))
	}
}

func marker(day schedule.Day) string {
	if len(day.Tickets) > 0 {
		return "*"
	}
	return " "
}

func printDay(out io.Writer, key string, tickets []types.ScheduledTicket) {
	fmt.Fprintf(out, "\n%s: ", key)
	if len(tickets) == 0 {
		fmt.Fprintln(out, "no tickets scheduled")
		return
	}
	fmt.Fprintf(out, "%d ticket(s)\n", len(tickets))

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, t := range tickets {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", t.ScheduledTime, t.TicketID, t.Status, t.Address)
	}
	_ = w.Flush()
}

type changePrinter struct {
	out io.Writer
}

func (p *changePrinter) OnTicketAssigned(e types.ChangeEvent) {
	fmt.Fprintf(p.out, "assigned: %s\n", e.TicketID)
}

func (p *changePrinter) OnTicketUpdated(e types.ChangeEvent) {
	fmt.Fprintf(p.out, "updated: %s\n", e.TicketID)
}

func (p *changePrinter) OnTicketRemoved(e types.ChangeEvent) {
	fmt.Fprintf(p.out, "removed: %s\n", e.TicketID)
}

func (p *changePrinter) OnTicketStatusChanged(ticketID, status string) {
	fmt.Fprintf(p.out, "status: %s -> %s\n", ticketID, status)
}

func (p *changePrinter) OnScheduleChanged(tickets []types.ScheduledTicket) {
	fmt.Fprintf(p.out, "schedule changed: %d ticket(s)\n", len(tickets))
}

func (p *changePrinter) OnError(err error) {
	fmt.Fprintf(p.out, "error: %v\n", err)
}

func (p *changePrinter) OnConnected()    { fmt.Fprintln(p.out, "listening") }
func (p *changePrinter) OnDisconnected() { fmt.Fprintln(p.out, "stopped listening") }
