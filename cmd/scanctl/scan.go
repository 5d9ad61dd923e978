package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"guestgate/cmd/internal/scanner"
)

// scanLoop submits one code per input line and prints one result line per submission.
// Repeats of the code still on screen are skipped.
func scanLoop(ctx context.Context, cl *gateClient, in io.Reader, out io.Writer, cooldown time.Duration) error {
	deb := scanner.NewDebouncer(cooldown)

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 4096), 64<<10)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		code := strings.TrimSpace(sc.Text())
		if code == "" {
			continue
		}
		if !deb.Admit(code) {
			continue
		}

		res, err := cl.scan(ctx, code)
		if err != nil {
			fmt.Fprintln(out, formatFailure(err))
			if isAuthFailure(err) {
				return err
			}
			// Let the operator rescan the same code immediately after an outage.
			deb.Reset()
			continue
		}
		fmt.Fprintln(out, formatResult(res))
		deb.Rendered()
	}
	return sc.Err()
}

func formatResult(res scanResult) string {
	tag := "ERR"
	switch res.Status {
	case "success":
		tag = "OK"
	case "duplicate":
		tag = "DUP"
	}

	line := tag + " " + res.Message
	if g := res.Guest; g != nil {
		line += " | " + g.Name
		if g.Category != "" {
			line += " (" + g.Category + ")"
		}
		if res.Status == "duplicate" && g.AttendedAt != nil {
			line += " | entered " + g.AttendedAt.Local().Format("15:04")
		}
	}
	return line
}

func formatFailure(err error) string {
	if retryable(err) {
		return "ERR Server busy, scan again | " + err.Error()
	}
	return "ERR " + err.Error()
}

func isAuthFailure(err error) bool {
	var ae *apiError
	return errors.As(err, &ae) && ae.Status == http.StatusUnauthorized
}
