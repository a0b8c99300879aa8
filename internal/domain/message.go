package domain

import "time"

// Message 表示投递到临时邮箱内的一封邮件，写入后不再修改。
type Message struct {
	ID         string    `json:"id"`
	To         string    `json:"to"`
	From       string    `json:"from"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	HTML       string    `json:"html,omitempty"`
	ReceivedAt time.Time `json:"date"`
}
