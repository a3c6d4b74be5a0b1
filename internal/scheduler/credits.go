package scheduler

import (
	"strconv"
	"strings"
)

// CreditTriple is the weekly theory, tutorial and practical load of a subject.
type CreditTriple struct {
	Theory    int
	Tutorial  int
	Practical int
}

// IsPurePractical reports a subject taught only in the lab.
func (c CreditTriple) IsPurePractical() bool {
	return c.Theory == 0 && c.Tutorial == 0 && c.Practical > 0
}

// ParseCredits reads a "theory:tutorial:practical" string for subject.
func ParseCredits(subject, raw string) (CreditTriple, error) {
	fields := strings.Split(raw, ":")
	if len(fields) != 3 {
		return CreditTriple{}, &InvalidCreditFormatError{Subject: subject, Raw: raw, Reason: "expected three fields"}
	}

	var values [3]int
	for i, f := range fields {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return CreditTriple{}, &InvalidCreditFormatError{Subject: subject, Raw: raw, Reason: "non-numeric field " + strconv.Quote(strings.TrimSpace(f))}
		}
		if n < 0 {
			return CreditTriple{}, &InvalidCreditFormatError{Subject: subject, Raw: raw, Reason: "negative field"}
		}
		values[i] = n
	}

	return CreditTriple{Theory: values[0], Tutorial: values[1], Practical: values[2]}, nil
}
