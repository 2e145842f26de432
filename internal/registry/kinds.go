package registry

import "tadaa_concierge/pkg"

func field(name string, values ...string) FieldSpec {
	return FieldSpec{Name: name, Values: values}
}

func defaultSpecs() []*KindSpec {
	return []*KindSpec{
		{
			Kind:  pkg.KindTask,
			Label: "TASK",
			Required: []FieldSpec{
				field("type", "home-maintenance", "cleaning", "gardening", "groceries", "delivery", "pharmacy", "others"),
				field("description"),
				field("priority", "urgent", "normal"),
			},
			Optional:   []FieldSpec{field("preferredDate"), field("notes")},
			Collection: "errands",
			Notes: []string{
				`Use "others" type for tasks that don't fit the specific categories, such as buying gifts, personal shopping, or miscellaneous errands.`,
			},
		},
		{
			Kind:       pkg.KindReminder,
			Label:      "REMINDER",
			Required:   []FieldSpec{field("title"), field("reminderDate"), field("reminderTime")},
			Optional:   []FieldSpec{field("notes"), field("recurrence")},
			Collection: "reminders",
		},
		{
			Kind:  pkg.KindBill,
			Label: "BILL",
			Required: []FieldSpec{
				field("name"),
				field("amount"),
				field("dueDate"),
				field("category", "utilities", "telco-internet", "insurance", "subscriptions", "credit-loans", "general"),
			},
			Optional: []FieldSpec{
				field("recurrence", "one-time", "monthly", "yearly"),
				field("reminderDays"),
				field("autoPayEnabled"),
			},
			Collection: "bills",
		},
		{
			Kind:       pkg.KindSchedule,
			Label:      "SCHEDULE (Appointment)",
			Required:   []FieldSpec{field("title"), field("date"), field("time"), field("location")},
			Optional:   []FieldSpec{field("type", "personal", "family", "medical"), field("notes"), field("recurrence")},
			Collection: "appointments",
		},
		{
			Kind:       pkg.KindPayment,
			Label:      "PAYMENT",
			Required:   []FieldSpec{field("type", "card", "paynow", "bank"), field("nickname")},
			Collection: "payment_methods",
			Selector:   "type",
			Variants: map[string][]FieldSpec{
				"card": {
					field("cardBrand"),
					field("cardLast4"),
					field("cardExpiryMonth"),
					field("cardExpiryYear"),
					field("cardHolderName"),
				},
				"paynow": {field("payNowMobile")},
				"bank":   {field("bankName"), field("bankAccountLast4"), field("bankAccountHolderName")},
			},
		},
	}
}
