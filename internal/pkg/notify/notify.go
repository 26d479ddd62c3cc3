package notify

import "context"

// Mailer 定义重置密码邮件的发送接口。
type Mailer interface {
	// SendPasswordReset 发送重置密码邮件。
	//
	// 参数:
	//   ctx: 上下文
	//   toEmail: 接收邮箱
	//   resetURL: 含明文重置令牌的链接（令牌只通过这封邮件传递）
	SendPasswordReset(ctx context.Context, toEmail string, resetURL string) error
}
