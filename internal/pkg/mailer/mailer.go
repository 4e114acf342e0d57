package mailer

import (
	"time"

	"ecommerce_backend/internal/pkg/config"
	"ecommerce_backend/pkg/logger"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// Email 一封待发送的通知邮件
type Email struct {
	To      string
	Subject string
	Text    string
	HTML    string
	Retry   int // 重试次数
}

// Mailer 运营通知邮件调度器
// 后台 worker 异步消费队列，发送失败有限次重试，队列满直接丢弃并记日志。
// 通知永远不阻塞调用方，也不向调用方返回错误。
type Mailer struct {
	queue      chan Email
	retryQueue chan Email
	dialer     *gomail.Dialer
	from       string
	adminEmail string
	workerNum  int
	maxRetry   int
}

// NewMailer 创建邮件调度器
func NewMailer(cfg config.SMTPConfig, workerNum, bufferSize int) *Mailer {
	return &Mailer{
		queue:      make(chan Email, bufferSize),
		retryQueue: make(chan Email, bufferSize/2),
		dialer:     gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:       cfg.From,
		adminEmail: cfg.AdminEmail,
		workerNum:  workerNum,
		maxRetry:   3,
	}
}

// Start 启动后台发送协程
func (m *Mailer) Start() {
	for i := 0; i < m.workerNum; i++ {
		go m.worker(i)
	}
	go m.retryWorker()
	logger.Log.Info("Mailer started", zap.Int("workers", m.workerNum))
}

// NotifyAdmin 给运营邮箱投递一封通知，非阻塞
func (m *Mailer) NotifyAdmin(subject, text, html string) {
	if m.adminEmail == "" {
		return
	}
	m.enqueue(Email{To: m.adminEmail, Subject: subject, Text: text, HTML: html})
}

func (m *Mailer) enqueue(e Email) {
	select {
	case m.queue <- e:
	default:
		logger.Log.Warn("Mailer queue full, dropping email", zap.String("subject", e.Subject))
	}
}

func (m *Mailer) worker(id int) {
	for e := range m.queue {
		if err := m.send(e); err != nil {
			logger.Log.Warn("Failed to send email",
				zap.Int("worker", id),
				zap.String("subject", e.Subject),
				zap.Error(err))

			if e.Retry < m.maxRetry {
				e.Retry++
				select {
				case m.retryQueue <- e:
				default:
					logger.Log.Warn("Mailer retry queue full, email dropped", zap.String("subject", e.Subject))
				}
			}
		}
	}
}

func (m *Mailer) retryWorker() {
	for e := range m.retryQueue {
		// 每封邮件独立退避重新入队，慢的重试不拖累队列里其它邮件
		time.AfterFunc(time.Duration(e.Retry)*time.Second, func() {
			m.enqueue(e)
		})
	}
}

func (m *Mailer) send(e Email) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", e.To)
	msg.SetHeader("Subject", e.Subject)
	msg.SetBody("text/plain", e.Text)
	if e.HTML != "" {
		msg.AddAlternative("text/html", e.HTML)
	}
	return m.dialer.DialAndSend(msg)
}
