package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"math"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"text/tabwriter"
	"time"

	"github.com/vladislavdragonenkov/commerce/internal/service/checkout"
	"github.com/vladislavdragonenkov/commerce/internal/service/httpapi"
	"github.com/vladislavdragonenkov/commerce/internal/service/idempotency"
)

const (
	codeTransport = "transport_error"
	codeTimeout   = "timeout"
	codeProtocol  = "unexpected_response"
)

type loadMode string

const (
	modeCart           loadMode = "cart"
	modeCheckout       loadMode = "checkout"
	modeCheckoutReplay loadMode = "checkout-replay"
)

type config struct {
	baseURL     string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	connections int
	timeout     time.Duration
	mode        loadMode
	variationID string
	quantity    int
	gateway     string
	emailDomain string
	outputPath  string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type stepReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Codes     map[string]int64 `json:"codes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt         time.Time             `json:"started_at"`
	DurationSeconds   float64               `json:"duration_seconds"`
	TotalScenarios    int64                 `json:"total_scenarios"`
	SuccessScenarios  int64                 `json:"success_scenarios"`
	FailedScenarios   int64                 `json:"failed_scenarios"`
	ErrorRate         float64               `json:"error_rate"`
	RPS               float64               `json:"rps"`
	ScenarioLatencyMs latencySummary        `json:"scenario_latency_ms"`
	Steps             map[string]stepReport `json:"steps"`
}

type stepStats struct {
	calls     int64
	success   int64
	failed    int64
	codes     map[string]int64
	latencies []float64
}

type collector struct {
	mu    sync.Mutex
	steps map[string]*stepStats
}

func newCollector() *collector {
	return &collector{steps: make(map[string]*stepStats)}
}

// record учитывает один вызов шага или целый сценарий ("scenario").
func (c *collector) record(step string, latency time.Duration, code string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, found := c.steps[step]
	if !found {
		stats = &stepStats{codes: make(map[string]int64)}
		c.steps[step] = stats
	}

	stats.calls++
	if ok {
		stats.success++
	} else {
		stats.failed++
	}
	stats.codes[code]++
	stats.latencies = append(stats.latencies, float64(latency.Microseconds())/1000.0)
}

func (s *stepStats) report() stepReport {
	codesCopy := make(map[string]int64, len(s.codes))
	for code, count := range s.codes {
		codesCopy[code] = count
	}
	return stepReport{
		Calls:     s.calls,
		Success:   s.success,
		Failed:    s.failed,
		ErrorRate: ratio(s.failed, s.calls),
		Codes:     codesCopy,
		LatencyMs: buildLatencySummary(s.latencies),
	}
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		Steps:           make(map[string]stepReport, len(c.steps)),
	}

	if scenario := c.steps["scenario"]; scenario != nil {
		result.TotalScenarios = scenario.calls
		result.SuccessScenarios = scenario.success
		result.FailedScenarios = scenario.failed
		result.ErrorRate = ratio(scenario.failed, scenario.calls)
		result.ScenarioLatencyMs = buildLatencySummary(scenario.latencies)
	}
	if duration > 0 {
		result.RPS = float64(result.TotalScenarios) / duration.Seconds()
	}
	for name, stats := range c.steps {
		result.Steps[name] = stats.report()
	}
	return result
}

func parseConfig(args []string, output io.Writer) (config, error) {
	var (
		cfg       config
		modeValue string
	)

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&cfg.baseURL, "addr", "http://localhost:8080", "checkout service base URL")
	fs.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	fs.DurationVar(&cfg.duration, "duration", 0, "optional time-based run duration (e.g. 10m, 15m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	fs.IntVar(&cfg.connections, "connections", 20, "max idle keep-alive connections to the service")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-request timeout")
	fs.StringVar(&modeValue, "mode", string(modeCheckout), "load mode: cart | checkout | checkout-replay")
	fs.StringVar(&cfg.variationID, "variation", "mug", "product variation added to every cart")
	fs.IntVar(&cfg.quantity, "quantity", 1, "quantity added to every cart")
	fs.StringVar(&cfg.gateway, "gateway", "manual", "payment gateway selected on the order information step")
	fs.StringVar(&cfg.emailDomain, "email-domain", "load.example.com", "domain for generated guest emails")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode
	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")

	if u, err := url.Parse(cfg.baseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return cfg, fmt.Errorf("addr must be an absolute URL: %q", cfg.baseURL)
	}
	if cfg.duration < 0 {
		return cfg, errors.New("duration must be >= 0")
	}
	if cfg.duration == 0 && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when duration is not set")
	}
	if cfg.duration > 0 && cfg.totalSet && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	}
	if cfg.concurrency <= 0 {
		return cfg, errors.New("concurrency must be > 0")
	}
	if cfg.connections <= 0 {
		return cfg, errors.New("connections must be > 0")
	}
	if cfg.timeout <= 0 {
		return cfg, errors.New("timeout must be > 0")
	}
	if cfg.quantity <= 0 {
		return cfg, errors.New("quantity must be > 0")
	}
	if strings.TrimSpace(cfg.variationID) == "" {
		return cfg, errors.New("variation is required")
	}
	if strings.TrimSpace(cfg.gateway) == "" {
		return cfg, errors.New("gateway is required")
	}
	if strings.TrimSpace(cfg.emailDomain) == "" {
		return cfg, errors.New("email-domain is required")
	}
	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch mode := loadMode(strings.TrimSpace(value)); mode {
	case modeCart, modeCheckout, modeCheckoutReplay:
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig(os.Args[1:], os.Stderr)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	result := runLoad(cfg, newHTTPClient(cfg))
	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}
	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

// newHTTPClient не следует редиректам: шаги checkout проверяют Location сами.
func newHTTPClient(cfg config) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = cfg.connections
	transport.MaxIdleConnsPerHost = cfg.connections
	return &http.Client{
		Transport: transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func runLoad(cfg config, client *http.Client) report {
	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	col := newCollector()
	shop := &shopClient{http: client, baseURL: cfg.baseURL, timeout: cfg.timeout, col: col}

	jobs := make(chan int, cfg.concurrency*2)
	var (
		failures int64
		wg       sync.WaitGroup
	)
	for range cfg.concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				if err := runScenario(shop, cfg, id, runID); err != nil {
					atomic.AddInt64(&failures, 1)
				}
			}
		}()
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	result := col.buildReport(startedAt, time.Since(startedAt))
	if result.FailedScenarios == 0 && failures > 0 {
		result.FailedScenarios = failures
		result.ErrorRate = ratio(result.FailedScenarios, result.TotalScenarios)
	}
	return result
}

// dispatchJobs раздаёт номера сценариев до исчерпания total или истечения duration.
func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	limit := cfg.total
	if cfg.duration > 0 && !cfg.totalSet {
		limit = math.MaxInt
	}
	var deadline <-chan time.Time
	if cfg.duration > 0 {
		timer := time.NewTimer(cfg.duration)
		defer timer.Stop()
		deadline = timer.C
	}

	for i := range limit {
		select {
		case <-deadline:
			return
		case jobs <- i:
		}
	}
}

// runScenario проходит путь покупателя-гостя: корзина, затем все шаги checkout.
func runScenario(shop *shopClient, cfg config, index int, runID string) (err error) {
	scenarioStart := time.Now()
	code := "ok"
	defer func() {
		if err != nil {
			code = errorCode(err)
		}
		shop.col.record("scenario", time.Since(scenarioStart), code, err == nil)
	}()

	key := func(step string) string { return fmt.Sprintf("lt-%s-%s-%d", step, runID, index) }

	add := url.Values{"variation_id": {cfg.variationID}, "quantity": {strconv.Itoa(cfg.quantity)}}
	resp, err := shop.call("AddToCart", http.MethodPost, "/cart/add", "", key("add"), add, http.StatusOK)
	if err != nil {
		return err
	}
	token := resp.header.Get(httpapi.HeaderSessionToken)
	var cart struct {
		OrderID string `json:"order_id"`
		Count   int    `json:"count"`
	}
	if err := json.Unmarshal(resp.body, &cart); err != nil || cart.OrderID == "" || token == "" {
		return protocolError("add to cart returned no order id or session token")
	}
	if cfg.mode == modeCart {
		return nil
	}
	if cfg.mode == modeCheckoutReplay {
		if err := replayAdd(shop, token, key("add-replay"), add); err != nil {
			return err
		}
	}

	orderID := cart.OrderID
	steps := []struct {
		name   string
		path   string
		form   url.Values
		expect string
	}{
		{"StartCheckout", "/cart/" + orderID + "/checkout", url.Values{}, checkout.StepLogin},
		{"Login", stepPath(orderID, checkout.StepLogin), url.Values{checkout.FieldOp: {checkout.OpContinueAsGuest}}, checkout.StepOrderInformation},
		{"OrderInformation", stepPath(orderID, checkout.StepOrderInformation), orderInformation(cfg, runID, index), checkout.StepReview},
		{"Review", stepPath(orderID, checkout.StepReview), url.Values{}, checkout.StepComplete},
	}
	for _, step := range steps {
		resp, err := shop.call(step.name, http.MethodPost, step.path, token, key(step.name), step.form, http.StatusSeeOther)
		if err != nil {
			return err
		}
		if got := resp.header.Get("Location"); got != stepPath(orderID, step.expect) {
			return protocolError(fmt.Sprintf("%s redirected to %q", step.name, got))
		}
	}

	resp, err = shop.call("Complete", http.MethodGet, stepPath(orderID, checkout.StepComplete), token, "", nil, http.StatusOK)
	if err != nil {
		return err
	}
	var view struct {
		Completed   bool  `json:"completed"`
		OrderNumber int64 `json:"order_number"`
	}
	if err := json.Unmarshal(resp.body, &view); err != nil || !view.Completed || view.OrderNumber <= 0 {
		return protocolError("completion page has no order number")
	}
	return nil
}

// replayAdd добавляет товар с ключом идемпотентности и повторяет запрос:
// повтор должен вернуть сохранённый ответ, не меняя корзину.
func replayAdd(shop *shopClient, token, key string, form url.Values) error {
	var first, second struct {
		Count int `json:"count"`
	}
	resp, err := shop.call("AddToCartKeyed", http.MethodPost, "/cart/add", token, key, form, http.StatusOK)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.body, &first); err != nil {
		return protocolError("keyed add returned invalid cart")
	}
	resp, err = shop.call("AddToCartReplay", http.MethodPost, "/cart/add", token, key, form, http.StatusOK)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.body, &second); err != nil || second.Count != first.Count {
		return protocolError(fmt.Sprintf("idempotent replay changed the cart: count %d, want %d", second.Count, first.Count))
	}
	return nil
}

func orderInformation(cfg config, runID string, index int) url.Values {
	email := fmt.Sprintf("guest-%s-%d@%s", runID, index, cfg.emailDomain)
	return url.Values{
		checkout.FieldContactEmail:             {email},
		checkout.FieldContactEmailConfirm:      {email},
		checkout.BillingField("recipient"):     {"Load Test"},
		checkout.BillingField("address_line1"): {"1 Load St"},
		checkout.BillingField("locality"):      {"Springfield"},
		checkout.BillingField("postal_code"):   {"12345"},
		checkout.BillingField("country_code"):  {"US"},
		checkout.FieldPaymentGateway:           {cfg.gateway},
	}
}

func stepPath(orderID, step string) string {
	return "/checkout/" + url.PathEscape(orderID) + "/" + url.PathEscape(step)
}

type shopClient struct {
	http    *http.Client
	baseURL string
	timeout time.Duration
	col     *collector
}

type response struct {
	status int
	header http.Header
	body   []byte
}

type statusError struct {
	step   string
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.step, e.status, e.body)
}

type protocolError string

func (e protocolError) Error() string { return string(e) }

func errorCode(err error) string {
	var se *statusError
	var pe protocolError
	switch {
	case errors.As(err, &se):
		return strconv.Itoa(se.status)
	case errors.As(err, &pe):
		return codeProtocol
	case errors.Is(err, context.DeadlineExceeded):
		return codeTimeout
	default:
		return codeTransport
	}
}

// call выполняет один запрос и учитывает его в статистике шага.
func (c *shopClient) call(step, method, path, token, idemKey string, form url.Values, want int) (response, error) {
	start := time.Now()
	resp, err := c.do(method, path, token, idemKey, form)
	if err == nil && resp.status != want {
		err = &statusError{step: step, status: resp.status, body: strings.TrimSpace(string(resp.body))}
	}
	code := strconv.Itoa(resp.status)
	if resp.status == 0 {
		code = errorCode(err)
	}
	c.col.record(step, time.Since(start), code, err == nil)
	return resp, err
}

func (c *shopClient) do(method, path, token, idemKey string, form url.Values) (response, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return response{}, err
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if token != "" {
		req.Header.Set(httpapi.HeaderSessionToken, token)
	}
	if idemKey != "" {
		req.Header.Set(idempotency.HeaderKey, idemKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return response{}, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return response{}, err
	}
	return response{status: resp.StatusCode, header: resp.Header, body: raw}, nil
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if !filepath.IsLocal(cleanPath) {
		return fmt.Errorf("output path must be a file inside the current directory: %s", path)
	}
	raw, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(cleanPath, append(raw, '\n'), 0o644)
}

func printReport(w io.Writer, result report, cfg config) {
	lat := result.ScenarioLatencyMs
	_, _ = fmt.Fprintf(w, "Load test summary\nmode=%s run=%s total=%d success=%d failed=%d error_rate=%.4f\n",
		cfg.mode, runTarget(cfg), result.TotalScenarios, result.SuccessScenarios, result.FailedScenarios, result.ErrorRate)
	_, _ = fmt.Fprintf(w, "duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)
	_, _ = fmt.Fprintf(w, "scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		lat.Min, lat.Avg, lat.P50, lat.P95, lat.P99, lat.Max)

	names := slices.Sorted(maps.Keys(result.Steps))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "step\tcalls\tsuccess\tfailed\terror_rate\tp95_ms\tcodes")
	for _, name := range names {
		if name == "scenario" {
			continue
		}
		st := result.Steps[name]
		_, _ = fmt.Fprintf(tw, "%s:\t%d\t%d\t%d\t%.4f\t%.2f\t%s\n",
			name, st.Calls, st.Success, st.Failed, st.ErrorRate, st.LatencyMs.P95, formatCodes(st.Codes))
	}
	_ = tw.Flush()
}

func formatCodes(codes map[string]int64) string {
	parts := make([]string, 0, len(codes))
	for _, code := range slices.Sorted(maps.Keys(codes)) {
		parts = append(parts, fmt.Sprintf("%s=%d", code, codes[code]))
	}
	return strings.Join(parts, ",")
}

func runTarget(cfg config) string {
	switch {
	case cfg.duration <= 0:
		return fmt.Sprintf("count:%d", cfg.total)
	case cfg.totalSet:
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	default:
		return fmt.Sprintf("duration:%s", cfg.duration)
	}
}

// buildLatencySummary считает перцентили линейной интерполяцией между соседними рангами.
func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	switch len(sorted) {
	case 0:
		return 0
	case 1:
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo, frac := math.Modf(rank)
	i := int(lo)
	if i+1 >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	return sorted[i] + (sorted[i+1]-sorted[i])*frac
}

func ratio(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
