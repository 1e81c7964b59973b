package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/erp/allocation/internal/application/allocation"
	"github.com/erp/allocation/internal/domain/ledger"
	"github.com/erp/allocation/internal/domain/shared"
	"github.com/erp/allocation/internal/infrastructure/persistence"
	"github.com/erp/allocation/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// errUsage marks a malformed command line
var errUsage = errors.New("usage")

// app wires the allocation services onto one database
type app struct {
	documents *allocation.DocumentService
	cross     *allocation.CrossAllocationService
	ordered   *allocation.OrderedCreditService
	manual    *allocation.ManualAllocationService
	balances  *allocation.BalanceService
}

func newApp(db *persistence.Database, log *zap.Logger, metrics *telemetry.AllocationMetrics) (*app, error) {
	scope, err := db.TransactionScope()
	if err != nil {
		return nil, err
	}
	opts := []allocation.Option{allocation.WithLogger(log), allocation.WithMetrics(metrics)}
	return &app{
		documents: allocation.NewDocumentService(scope, opts...),
		cross:     allocation.NewCrossAllocationService(scope, opts...),
		ordered:   allocation.NewOrderedCreditService(scope, opts...),
		manual:    allocation.NewManualAllocationService(scope, opts...),
		balances:  allocation.NewBalanceService(scope, opts...),
	}, nil
}

// command runs one subcommand and returns the value to print
type command func(ctx context.Context, a *app, fs *flag.FlagSet, args []string, in io.Reader) (any, error)

var commands = map[string]command{
	"record":      cmdRecord,
	"void":        cmdVoid,
	"deallocate":  cmdDeallocate,
	"allocations": cmdAllocations,
	"cross":       cmdCross,
	"batch":       cmdBatch,
	"ordered":     cmdOrdered,
	"suggest":     cmdSuggest,
	"preview":     cmdPreview,
	"execute":     cmdExecute,
	"balances":    cmdBalances,
	"statement":   cmdStatement,
}

func (a *app) dispatch(ctx context.Context, args []string, in io.Reader, out io.Writer) error {
	name := args[0]
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("%w: unknown command %q (known: %s)", errUsage, name, strings.Join(commandNames(), ", "))
	}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	result, err := cmd(ctx, a, fs, args[1:], in)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func commandNames() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// partyFlag parses TYPE:ID
type partyFlag struct {
	party ledger.Party
	set   bool
}

func (p *partyFlag) String() string {
	if !p.set {
		return ""
	}
	return p.party.String()
}

func (p *partyFlag) Set(value string) error {
	kind, id, ok := strings.Cut(value, ":")
	if !ok {
		return fmt.Errorf("party must be TYPE:ID, got %q", value)
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid party id %q", id)
	}
	p.party = ledger.Party{Type: ledger.PartyType(strings.ToUpper(kind)), ID: n}
	p.set = true
	return nil
}

// parseParty parses -party plus one optional int64 flag
func parseParty(fs *flag.FlagSet, args []string, idName string, required bool) (ledger.Party, int64, error) {
	var party partyFlag
	fs.Var(&party, "party", "owning party as TYPE:ID")
	var id int64
	if idName != "" {
		fs.Int64Var(&id, idName, 0, "document or allocation id")
	}
	if err := fs.Parse(args); err != nil {
		return ledger.Party{}, 0, fmt.Errorf("%w: %v", errUsage, err)
	}
	if !party.set {
		return ledger.Party{}, 0, fmt.Errorf("%w: -party is required", errUsage)
	}
	if required && id <= 0 {
		return ledger.Party{}, 0, fmt.Errorf("%w: -%s is required", errUsage, idName)
	}
	return party.party, id, nil
}

// decodeInput reads the JSON request from -in or in
func decodeInput(fs *flag.FlagSet, args []string, in io.Reader, dst any) error {
	path := fs.String("in", "", "read the request from this file instead of stdin")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if *path != "" {
		f, err := os.Open(*path)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	dec := json.NewDecoder(in)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return shared.NewDomainError(shared.CodeInvalidInput, fmt.Sprintf("Malformed request: %v", err))
	}
	return nil
}

func cmdRecord(ctx context.Context, a *app, fs *flag.FlagSet, args []string, in io.Reader) (any, error) {
	var req allocation.RecordDocumentRequest
	if err := decodeInput(fs, args, in, &req); err != nil {
		return nil, err
	}
	return a.documents.Record(ctx, req)
}

func cmdVoid(ctx context.Context, a *app, fs *flag.FlagSet, args []string, _ io.Reader) (any, error) {
	party, id, err := parseParty(fs, args, "id", true)
	if err != nil {
		return nil, err
	}
	return a.documents.Void(ctx, party, id)
}

func cmdDeallocate(ctx context.Context, a *app, fs *flag.FlagSet, args []string, _ io.Reader) (any, error) {
	party, id, err := parseParty(fs, args, "id", true)
	if err != nil {
		return nil, err
	}
	return a.documents.Deallocate(ctx, party, id)
}

func cmdAllocations(ctx context.Context, a *app, fs *flag.FlagSet, args []string, _ io.Reader) (any, error) {
	party, debit, err := parseParty(fs, args, "debit", false)
	if err != nil {
		return nil, err
	}
	var debitID *int64
	if debit > 0 {
		debitID = &debit
	}
	return a.documents.ListAllocations(ctx, party, debitID)
}

func cmdCross(ctx context.Context, a *app, fs *flag.FlagSet, args []string, in io.Reader) (any, error) {
	var req allocation.CrossAllocationRequest
	if err := decodeInput(fs, args, in, &req); err != nil {
		return nil, err
	}
	return a.cross.Apply(ctx, req)
}

func cmdBatch(ctx context.Context, a *app, fs *flag.FlagSet, args []string, _ io.Reader) (any, error) {
	party, id, err := parseParty(fs, args, "id", true)
	if err != nil {
		return nil, err
	}
	return a.cross.GetBatch(ctx, party, id)
}

func cmdOrdered(ctx context.Context, a *app, fs *flag.FlagSet, args []string, in io.Reader) (any, error) {
	var req allocation.OrderedCreditRequest
	if err := decodeInput(fs, args, in, &req); err != nil {
		return nil, err
	}
	return a.ordered.Apply(ctx, req)
}

func cmdSuggest(ctx context.Context, a *app, fs *flag.FlagSet, args []string, _ io.Reader) (any, error) {
	party, _, err := parseParty(fs, args, "", false)
	if err != nil {
		return nil, err
	}
	return a.ordered.SuggestPicks(ctx, party)
}

func cmdPreview(ctx context.Context, a *app, fs *flag.FlagSet, args []string, in io.Reader) (any, error) {
	var plan ledger.ManualPlan
	if err := decodeInput(fs, args, in, &plan); err != nil {
		return nil, err
	}
	return a.manual.Preview(ctx, plan)
}

func cmdExecute(ctx context.Context, a *app, fs *flag.FlagSet, args []string, in io.Reader) (any, error) {
	var plan ledger.ManualPlan
	if err := decodeInput(fs, args, in, &plan); err != nil {
		return nil, err
	}
	return a.manual.Execute(ctx, plan)
}

func cmdBalances(ctx context.Context, a *app, fs *flag.FlagSet, args []string, _ io.Reader) (any, error) {
	party, _, err := parseParty(fs, args, "", false)
	if err != nil {
		return nil, err
	}
	return a.balances.GetBalances(ctx, party)
}

func cmdStatement(ctx context.Context, a *app, fs *flag.FlagSet, args []string, _ io.Reader) (any, error) {
	party, _, err := parseParty(fs, args, "", false)
	if err != nil {
		return nil, err
	}
	return a.balances.GetStatement(ctx, party)
}

// exitCode maps errors onto process exit codes: 2 usage, 3 rejected by the
// ledger rules, 4 concurrent modification, 1 anything else
func exitCode(err error) int {
	switch {
	case errors.Is(err, errUsage):
		return 2
	case errors.Is(err, shared.ErrConcurrencyConflict):
		return 4
	case shared.CodeOf(err) != "":
		return 3
	}
	return 1
}
