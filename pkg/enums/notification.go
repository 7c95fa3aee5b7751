package enums

type NotificationType string

const (
	NotificationTypeCreditsPurchased NotificationType = "credits_purchased"
	NotificationTypeCreditsRefunded  NotificationType = "credits_refunded"
	NotificationTypeRewardGranted    NotificationType = "reward_granted"
	NotificationTypeTrialGranted     NotificationType = "trial_granted"
)

var notificationTypes = values[NotificationType]{
	NotificationTypeCreditsPurchased,
	NotificationTypeCreditsRefunded,
	NotificationTypeRewardGranted,
	NotificationTypeTrialGranted,
}

func (n NotificationType) IsValid() bool { return notificationTypes.has(n) }
