// Package fraud реализует оценку риска мошенничества для оформляемого заказа.
// Оценка консультативная: она никогда не блокирует оформление заказа.
package fraud

import (
	"fmt"
	"strings"
)

// Пороговые значения правил. Суммы — в минорных единицах валюты.
const (
	HighValueThresholdCents = 50000 * 100
	MultipleOrdersThreshold = 3
)

// Level — итоговый уровень риска.
type Level string

const (
	LevelNone   Level = "NONE"
	LevelLow    Level = "LOW"
	LevelMedium Level = "MEDIUM"
	LevelHigh   Level = "HIGH"
)

// Input — снимок данных, по которому вычисляется оценка.
// Счётчики заказов собираются вызывающей стороной, сама оценка чистая.
type Input struct {
	TotalCents      int64
	RecentOrders24h int64
	PriorOrders     int64
	ClientIP        string
}

// Assessment — результат оценки одного оформления заказа.
type Assessment struct {
	Score      int
	Level      Level
	Suspicious bool
	Reasons    []string
}

// Reason возвращает все сработавшие признаки одной строкой.
func (a *Assessment) Reason() string {
	if len(a.Reasons) == 0 {
		return "No suspicious patterns detected"
	}
	return strings.Join(a.Reasons, "; ")
}

// Assess вычисляет оценку риска. Правила независимы и накапливают балл
// без раннего выхода; одинаковый вход всегда даёт одинаковый результат.
func Assess(in Input) Assessment {
	var a Assessment

	checkOrderValue(in, &a)
	checkMultipleOrders(in, &a)
	checkIPPatterns(in, &a)
	checkAddressMismatch(in, &a)
	checkNewCustomerOrder(in, &a)

	switch {
	case a.Score >= 75:
		a.Level = LevelHigh
	case a.Score >= 40:
		a.Level = LevelMedium
	case a.Score >= 20:
		a.Level = LevelLow
	default:
		a.Level = LevelNone
	}
	a.Suspicious = a.Score >= 20

	return a
}

func checkOrderValue(in Input, a *Assessment) {
	if in.TotalCents >= HighValueThresholdCents {
		a.Score += 25
		a.Reasons = append(a.Reasons, fmt.Sprintf("high value order: %.2f", float64(in.TotalCents)/100))
	}
}

func checkMultipleOrders(in Input, a *Assessment) {
	if in.RecentOrders24h >= MultipleOrdersThreshold {
		a.Score += 30
		a.Reasons = append(a.Reasons, fmt.Sprintf("multiple orders in 24h: %d", in.RecentOrders24h))
	}
}

// checkIPPatterns — точка расширения для эвристик по IP-адресу.
// Правило намеренно бездействует: для него требуется хранение IP в заказах.
func checkIPPatterns(in Input, a *Assessment) {
	_ = in.ClientIP
}

// checkAddressMismatch — точка расширения для сверки адресов доставки и оплаты.
// Правило намеренно бездействует: платёжный адрес в заказе не хранится.
func checkAddressMismatch(in Input, a *Assessment) {
}

func checkNewCustomerOrder(in Input, a *Assessment) {
	if in.PriorOrders == 0 && in.TotalCents > HighValueThresholdCents {
		a.Score += 35
		a.Reasons = append(a.Reasons, "new customer with high-value first order")
	}
}
