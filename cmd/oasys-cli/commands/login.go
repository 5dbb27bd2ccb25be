package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"oasys-backend/lib/attendance"
	"oasys-backend/lib/loginflow"
	"oasys-backend/lib/statestore"

	"github.com/spf13/cobra"
)

var captchaFile *string

func init() {
	captchaFile = loginCmd.Flags().String(
		"captcha-file", "captcha.png",
		"Where to write the captcha image for you to read.",
	)
	rootCmd.AddCommand(loginCmd)
}

func prompt(reader *bufio.Reader, label string) (string, error) {
	fmt.Print(label)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// termsGate asks for consent before any credentials are collected.
// Choosing "always" sets the durable flag so the question never comes
// back.
func termsGate(ctx context.Context, store statestore.Store, reader *bufio.Reader) (bool, error) {
	accepted, err := store.TermsAccepted(ctx)
	if err != nil {
		return false, err
	}
	if accepted {
		return true, nil
	}

	fmt.Println("Your netid and password are passed through to the SRM student")
	fmt.Println("portal to fetch your attendance. They are never stored; only")
	fmt.Println("the resulting attendance page is kept on this machine.")
	answer, err := prompt(reader, "Continue? [y]es / [a]lways / [n]o: ")
	if err != nil {
		return false, err
	}

	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	case "a", "always":
		return true, store.AcceptTerms(ctx)
	default:
		return false, nil
	}
}

func writeCaptcha(flow *loginflow.Flow) {
	image := flow.CaptchaImage()
	if len(image) == 0 {
		return
	}
	err := os.WriteFile(*captchaFile, image, 0600)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to write captcha image:", err)
	}
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log into the student portal and fetch your attendance.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store := openStore()
		defer store.Close()

		reader := bufio.NewReader(os.Stdin)
		ok, err := termsGate(ctx, store, reader)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		flow, err := loginflow.NewFlow(ctx, loginflow.Options{
			BaseUrl: *gatewayUrl,
			Store:   store,
		})
		if err != nil {
			return err
		}

		err = flow.Start(ctx)
		if err != nil {
			return fmt.Errorf("could not load captcha, try again later: %w", err)
		}
		writeCaptcha(flow)

		netid, err := prompt(reader, "NetID: ")
		if err != nil {
			return err
		}
		password, err := prompt(reader, "Password: ")
		if err != nil {
			return err
		}

		for {
			captcha, err := prompt(reader, fmt.Sprintf("Captcha (see %s): ", *captchaFile))
			if err != nil {
				return err
			}

			html, err := flow.Submit(ctx, netid, password, captcha)
			if errors.Is(err, loginflow.ErrMissingFields) {
				fmt.Println("Please fill all fields.")
				continue
			}
			if err != nil {
				// a fresh captcha was already issued for the retry
				fmt.Println("Login failed, check credentials or captcha.")
				writeCaptcha(flow)
				continue
			}

			snapshot, err := attendance.Extract(html)
			if errors.Is(err, attendance.ErrNoTable) {
				fmt.Println("No attendance data found for your account.")
				return nil
			}
			if err != nil {
				return err
			}
			renderSnapshot(netid, snapshot)
			return nil
		}
	},
}
