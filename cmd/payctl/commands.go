package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/sahilchouksey/course-marketplace-api/config"
	"github.com/sahilchouksey/course-marketplace-api/database"
	"github.com/sahilchouksey/course-marketplace-api/model"
	"github.com/sahilchouksey/course-marketplace-api/services"
	"github.com/sahilchouksey/course-marketplace-api/services/payu"
	"github.com/sahilchouksey/course-marketplace-api/services/storage"
	"github.com/sahilchouksey/course-marketplace-api/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func loadConfig() (*config.Config, error) {
	if err := config.LoadENV(); err != nil {
		return nil, err
	}
	return config.Load()
}

func payuConfig(cfg *config.Config) payu.Config {
	return payu.NewConfig(
		cfg.PayU.MerchantKey,
		cfg.PayU.MerchantSalt,
		cfg.PayU.Mode,
		cfg.PayU.PaymentURL,
		cfg.PayU.VerifyURL,
		cfg.PayU.ServiceProvider,
		cfg.PayU.Timeout,
	)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type verifier interface {
	Verify(ctx context.Context, txnID string) (*payu.VerificationResult, error)
}

func verifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <txnid>",
		Short: "Ask the gateway for the status of a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runVerify(cmd.Context(), cmd.OutOrStdout(), payu.NewClient(payuConfig(cfg)), args[0])
		},
	}
	return cmd
}

func runVerify(ctx context.Context, w io.Writer, client verifier, txnID string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	result, err := client.Verify(ctx, txnID)
	if err != nil {
		return fmt.Errorf("verify %s: %w", txnID, err)
	}
	return printJSON(w, result)
}

type hashOptions struct {
	key         string
	salt        string
	txnID       string
	amount      string
	productInfo string
	firstName   string
	email       string
	udf         [5]string
}

func hashCmd() *cobra.Command {
	var opts hashOptions

	cmd := &cobra.Command{
		Use:   "hash",
		Short: "Compute the request hash for a payment form",
		Long: `Compute the SHA-512 request hash PayU expects on the hosted payment form.
Merchant key and salt default to PAYU_MERCHANT_KEY and PAYU_MERCHANT_SALT.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.key == "" || opts.salt == "" {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				if opts.key == "" {
					opts.key = cfg.PayU.MerchantKey
				}
				if opts.salt == "" {
					opts.salt = cfg.PayU.MerchantSalt
				}
			}
			return runHash(cmd.OutOrStdout(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.key, "key", "", "merchant key")
	f.StringVar(&opts.salt, "salt", "", "merchant salt")
	f.StringVar(&opts.txnID, "txnid", "", "transaction id")
	f.StringVar(&opts.amount, "amount", "", "amount exactly as posted, e.g. 499.00")
	f.StringVar(&opts.productInfo, "productinfo", "", "product info")
	f.StringVar(&opts.firstName, "firstname", "", "payer first name")
	f.StringVar(&opts.email, "email", "", "payer email")
	for i := range opts.udf {
		f.StringVar(&opts.udf[i], fmt.Sprintf("udf%d", i+1), "", fmt.Sprintf("user defined field %d", i+1))
	}
	_ = cmd.MarkFlagRequired("txnid")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

func runHash(w io.Writer, o hashOptions) error {
	if o.key == "" || o.salt == "" {
		return fmt.Errorf("merchant key and salt are required")
	}
	_, err := fmt.Fprintln(w, payu.RequestHash(o.key, o.txnID, o.amount, o.productInfo, o.firstName, o.email, o.udf, o.salt))
	return err
}

func staleCmd() *cobra.Command {
	var (
		olderThan time.Duration
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "stale",
		Short: "List pending payments older than a cutoff",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log, err := utils.NewLogger(cfg.Env)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			store, err := database.StartGORM(cfg, log.WithOptions(zap.IncreaseLevel(zap.WarnLevel)))
			if err != nil {
				return err
			}
			defer store.Close()

			return runStale(cmd.Context(), cmd.OutOrStdout(), store.DB(), time.Now().Add(-olderThan), limit)
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*time.Minute, "minimum age of a pending payment")
	cmd.Flags().IntVarP(&limit, "limit", "n", 100, "maximum payments to list")

	return cmd
}

type staleRow struct {
	TransactionID string    `json:"txnid"`
	UserID        uint      `json:"user_id"`
	Amount        string    `json:"amount"`
	CreatedAt     time.Time `json:"created_at"`
	Age           string    `json:"age"`
}

func runStale(ctx context.Context, w io.Writer, db *gorm.DB, cutoff time.Time, limit int) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var payments []model.Payment
	err := db.WithContext(ctx).
		Where("status = ? AND created_at < ?", model.PaymentStatusPending, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&payments).Error
	if err != nil {
		return fmt.Errorf("query stale payments: %w", err)
	}

	rows := make([]staleRow, 0, len(payments))
	for _, p := range payments {
		rows = append(rows, staleRow{
			TransactionID: p.TransactionID,
			UserID:        p.UserID,
			Amount:        p.Amount.StringFixed(2),
			CreatedAt:     p.CreatedAt,
			Age:           time.Since(p.CreatedAt).Truncate(time.Second).String(),
		})
	}
	return printJSON(w, rows)
}

type callbackReader interface {
	Callbacks(ctx context.Context, txnID string, day time.Time) ([]services.ArchivedCallback, error)
}

func callbacksCmd() *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "callbacks <txnid>",
		Short: "Print the gateway callbacks archived for a transaction",
		Long: `Print the gateway callbacks archived in Spaces for a transaction.
Without --date the day is taken from the checkout time inside the txnid.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := callbackDay(args[0], date)
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.Spaces.Enabled() {
				return fmt.Errorf("spaces is not configured")
			}
			client, err := storage.NewSpacesClient(storage.SpacesConfig{
				AccessKey: cfg.Spaces.AccessKey,
				SecretKey: cfg.Spaces.SecretKey,
				Bucket:    cfg.Spaces.Bucket,
				Region:    cfg.Spaces.Region,
				Endpoint:  cfg.Spaces.Endpoint,
			})
			if err != nil {
				return err
			}

			return runCallbacks(cmd.Context(), cmd.OutOrStdout(), services.NewSpacesCallbackArchiver(client), args[0], day)
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "UTC day the callback arrived, YYYY-MM-DD")

	return cmd
}

func callbackDay(txnID, date string) (time.Time, error) {
	if date != "" {
		day, err := time.Parse("2006-01-02", date)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid --date %q: %w", date, err)
		}
		return day, nil
	}
	day, ok := services.TransactionTime(txnID)
	if !ok {
		return time.Time{}, fmt.Errorf("cannot read a date from %s; pass --date", txnID)
	}
	return day, nil
}

func runCallbacks(ctx context.Context, w io.Writer, reader callbackReader, txnID string, day time.Time) error {
	if ctx == nil {
		ctx = context.Background()
	}
	callbacks, err := reader.Callbacks(ctx, txnID, day)
	if err != nil {
		return fmt.Errorf("read callbacks for %s: %w", txnID, err)
	}
	if len(callbacks) == 0 {
		return fmt.Errorf("no callbacks archived for %s on %s", txnID, day.UTC().Format("2006-01-02"))
	}
	return printJSON(w, callbacks)
}
