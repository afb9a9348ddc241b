package alerts

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// amount formats v with two decimals and thousands separators.
func amount(v float64) string {
	s := strconv.FormatFloat(math.Abs(v), 'f', 2, 64)
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	if v < 0 {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}

func daysText(days int) string {
	switch days {
	case 0:
		return "today"
	case 1:
		return "tomorrow"
	default:
		return fmt.Sprintf("in %d days", days)
	}
}

func balanceMessage(a BalanceAlert) string {
	unit := a.Unit()
	return fmt.Sprintf("Project [%s] %s is low. Current: %s%s, threshold: %s%s",
		a.ProjectName, a.KindLabel(), unit, amount(a.Value), unit, amount(a.Threshold))
}

func subscriptionMessage(a SubscriptionAlert) string {
	return fmt.Sprintf("Subscription [%s] renews %s (%s), amount: %s %s",
		a.Name, daysText(a.DaysUntilRenewal), a.CycleType.Describe(a.RenewalDay), a.Currency, amount(a.Amount))
}

// balanceLines is the label/value body shared by the text formats.
func balanceLines(a BalanceAlert) [][2]string {
	unit := a.Unit()
	return [][2]string{
		{"Project", a.ProjectName},
		{"Provider", a.Provider},
		{"Current " + a.KindLabel(), unit + amount(a.Value)},
		{"Threshold", unit + amount(a.Threshold)},
		{"Status", "⚠️ " + a.KindLabel() + " low"},
	}
}

func subscriptionLines(a SubscriptionAlert) [][2]string {
	return [][2]string{
		{"Subscription", a.Name},
		{"Renews", a.CycleType.Describe(a.RenewalDay)},
		{"Due", daysText(a.DaysUntilRenewal)},
		{"Amount", a.Currency + " " + amount(a.Amount)},
	}
}

func plainText(title string, lines [][2]string, source string) string {
	var b strings.Builder
	b.WriteString("【" + title + "】\n")
	for _, l := range lines {
		b.WriteString(l[0] + ": " + l[1] + "\n")
	}
	if source != "" {
		b.WriteString("Source: " + source + "\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func markdownList(title string, lines [][2]string) string {
	var b strings.Builder
	b.WriteString("## " + title + "\n\n")
	for _, l := range lines {
		b.WriteString("- **" + l[0] + "**: " + l[1] + "\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

const (
	balanceTitle      = "Balance alert"
	subscriptionTitle = "Subscription renewal reminder"
)
