package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/trialsignup/signup/internal/checkout"
)

// stdoutNavigator prints notices and the final redirect instead of rendering them.
type stdoutNavigator struct{}

func (stdoutNavigator) Notify(message string) { fmt.Println(message) }

func (stdoutNavigator) Navigate(_ context.Context, target string) error {
	fmt.Println("redirect:", target)
	return nil
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
	_ = godotenv.Load()

	home, _ := os.UserHomeDir()
	var (
		apiURL        = flag.String("api", getEnv("SIGNUP_API_URL", "http://localhost:3000"), "signup API base URL")
		onboardingURL = flag.String("onboarding-url", getEnv("ONBOARDING_URL", "https://app.example.com/onboarding"), "redirect destination")
		storagePath   = flag.String("storage", filepath.Join(home, ".trialsignup", "storage.json"), "durable storage file")
		landingURL    = flag.String("landing-url", "", "landing page URL carrying the referral parameter")
		firstName     = flag.String("first-name", "", "first name")
		lastName      = flag.String("last-name", "", "last name")
		email         = flag.String("email", "", "email address")
		phone         = flag.String("phone", "", "phone number")
		zip           = flag.String("zip", "", "ZIP code")
		paymentMethod = flag.String("payment-method", "", "tokenized payment method id")
		acceptTerms   = flag.Bool("accept-terms", false, "accept the terms of service")
		reset         = flag.Bool("reset", false, "discard autosaved contact fields and exit")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, runConfig{
		apiURL:        *apiURL,
		onboardingURL: *onboardingURL,
		storagePath:   *storagePath,
		landingURL:    *landingURL,
		fields: map[string]string{
			checkout.FieldFirstName: *firstName,
			checkout.FieldLastName:  *lastName,
			checkout.FieldEmail:     *email,
			checkout.FieldPhone:     *phone,
			checkout.FieldZipCode:   *zip,
		},
		paymentMethod: *paymentMethod,
		acceptTerms:   *acceptTerms,
		reset:         *reset,
	}); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type runConfig struct {
	apiURL, onboardingURL, storagePath, landingURL string
	fields                                         map[string]string
	paymentMethod                                  string
	acceptTerms, reset                             bool
}

func run(ctx context.Context, cfg runConfig) error {
	storage, err := checkout.OpenFileStorage(cfg.storagePath)
	if err != nil {
		return err
	}
	api := checkout.NewAPIClient(cfg.apiURL, 15*time.Second)
	offer, err := api.Offer(ctx)
	if err != nil {
		return fmt.Errorf("load offer: %w", err)
	}

	attribution := checkout.NewAttributionStore(storage)
	if cfg.landingURL != "" {
		u, err := url.Parse(cfg.landingURL)
		if err != nil {
			return fmt.Errorf("parse landing url: %w", err)
		}
		if _, err := attribution.Capture(u.Query()); err != nil {
			return fmt.Errorf("capture attribution: %w", err)
		}
	}

	machine := checkout.NewMachine(checkout.MachineDeps{
		Email:   checkout.NewEmailValidator(api.ValidateEmail, checkout.DefaultDebounce),
		Phone:   checkout.NewPhoneValidator(api.ValidatePhone, checkout.DefaultDebounce),
		Storage: storage,
	})
	if cfg.reset {
		machine.Reset()
		fmt.Println("autosaved contact fields cleared")
		return nil
	}

	in := bufio.NewReader(os.Stdin)
	for field, value := range cfg.fields {
		if value == "" {
			continue
		}
		if err := machine.SetField(field, value); err != nil {
			return err
		}
	}
	password, err := prompt(in, "Password: ")
	if err != nil {
		return err
	}
	if err := machine.SetField(checkout.FieldPassword, password); err != nil {
		return err
	}

	fmt.Printf("Plan %s: %d %s/%s after a %d-day free trial (referral: %s)\n",
		offer.PriceID, offer.AmountCents, strings.ToUpper(offer.Currency), offer.Interval, offer.TrialDays, attribution.Read())

	if err := advance(ctx, machine, api, in); err != nil {
		return err
	}

	if cfg.paymentMethod == "" {
		return errors.New("-payment-method is required")
	}
	machine.SetWidgetReady(true)
	machine.AcceptTerms(cfg.acceptTerms)
	if !machine.IsFormReady() {
		return errors.New("terms must be accepted with -accept-terms")
	}

	flow := &checkout.Checkout{
		Machine:     machine,
		Attribution: attribution,
		Orchestrator: checkout.NewOrchestrator(checkout.OrchestratorDeps{
			Billing: api,
			Widget: &checkout.ServerWidget{
				API:             api,
				PaymentMethodID: cfg.paymentMethod,
				Challenge: func(_ context.Context, url string) error {
					fmt.Println("Complete card authentication at:", url)
					_, err := prompt(in, "Press enter when done... ")
					return err
				},
			},
			Offer: *offer,
		}),
		Dispatcher: checkout.NewDispatcher(checkout.DispatcherDeps{
			OnboardingURL: cfg.onboardingURL,
			Delay:         checkout.DefaultRedirectDelay,
			Navigator:     stdoutNavigator{},
		}),
	}
	_, err = flow.Submit(ctx)
	return err
}

// advance leaves the personal info step, offering a one-time code when the
// phone could not be matched to the name.
func advance(ctx context.Context, machine *checkout.Machine, api *checkout.APIClient, in *bufio.Reader) error {
	for attempt := 0; attempt < 2; attempt++ {
		err := machine.Next(ctx)
		if err == nil {
			for _, field := range []string{checkout.FieldEmail, checkout.FieldPhone} {
				if res := machine.Result(field); res.Message != "" || res.Reason != "" {
					fmt.Printf("%s: %s %s\n", field, res.Message, res.Reason)
				}
			}
			return nil
		}
		var rejected *checkout.ValidationRejected
		if !errors.As(err, &rejected) {
			return err
		}
		phone := machine.Result(checkout.FieldPhone)
		if attempt > 0 || len(rejected.Fields) != 1 || !phone.RequiresVerification {
			return err
		}
		number := machine.Draft().Phone
		if err := api.RequestPhoneCode(ctx, number); err != nil {
			return fmt.Errorf("request verification code: %w", err)
		}
		code, err := prompt(in, "Enter the code sent to "+number+": ")
		if err != nil {
			return err
		}
		if err := api.ConfirmPhoneCode(ctx, number, code); err != nil {
			return fmt.Errorf("verify phone: %w", err)
		}
		machine.MarkPhoneVerified()
	}
	return checkout.ErrWrongStep
}

func prompt(in *bufio.Reader, label string) (string, error) {
	fmt.Print(label)
	line, err := in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
