package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/baharkarakas/offline-sync/internal/auth"
	"github.com/baharkarakas/offline-sync/internal/models"
)

type signedTx struct {
	LocalID   string               `json:"localId"`
	Type      models.OfflineTxType `json:"type"`
	Amount    int64                `json:"amount"`
	WalletID  string               `json:"walletId"`
	StaffID   string               `json:"staffId,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
	Signature string               `json:"signature"`
}

func signCommand() *cli.Command {
	return &cli.Command{
		Name:  "sign",
		Usage: "Sign one offline transaction and print it as batch JSON",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "secret", Usage: "master signing secret", EnvVars: []string{"SYNC_SIGNING_SECRET"}, Required: true},
			&cli.StringFlag{Name: "festival", Aliases: []string{"f"}, Usage: "festival id", Required: true},
			&cli.BoolFlag{Name: "raw", Usage: "use --secret as the festival key instead of deriving it"},
			&cli.StringFlag{Name: "local-id", Usage: "device-local transaction id", Required: true},
			&cli.StringFlag{Name: "wallet", Aliases: []string{"w"}, Usage: "wallet id", Required: true},
			&cli.Int64Flag{Name: "amount", Aliases: []string{"a"}, Usage: "amount in minor units", Required: true},
			&cli.StringFlag{Name: "type", Value: string(models.OfflinePurchase), Usage: "PURCHASE, REFUND, TOPUP or CASHIN"},
			&cli.StringFlag{Name: "staff", Usage: "staff id"},
			&cli.TimestampFlag{Name: "timestamp", Layout: time.RFC3339, Usage: "device timestamp (default now)"},
		},
		Action: func(c *cli.Context) error {
			typ, ok := models.ParseOfflineTxType(c.String("type"))
			if !ok {
				return fmt.Errorf("unknown transaction type %q", c.String("type"))
			}
			if c.Int64("amount") <= 0 {
				return fmt.Errorf("amount must be positive")
			}
			ts := time.Now()
			if t := c.Timestamp("timestamp"); t != nil {
				ts = *t
			}
			ts = ts.UTC().Truncate(time.Second)

			var src auth.SecretSource = auth.NewKeyRing([]byte(c.String("secret")))
			if c.Bool("raw") {
				src = auth.StaticSecret(c.String("secret"))
			}
			sig, err := auth.NewSigner(src).SignFields(c.String("festival"), c.String("local-id"), c.String("wallet"), c.Int64("amount"), typ, ts)
			if err != nil {
				return fmt.Errorf("sign: %w", err)
			}

			enc := json.NewEncoder(c.App.Writer)
			enc.SetIndent("", "  ")
			return enc.Encode(signedTx{
				LocalID:   c.String("local-id"),
				Type:      typ,
				Amount:    c.Int64("amount"),
				WalletID:  c.String("wallet"),
				StaffID:   c.String("staff"),
				Timestamp: ts,
				Signature: sig,
			})
		},
	}
}
