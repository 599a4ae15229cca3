package store

import "gorm.io/gorm"

// defaultService synthesizes the zero-value Service document SPEC_FULL.md
// §C "Service properties defaults" mandates for an account that has never
// called setServiceProperties: empty CORS list, disabled logging/metrics,
// disabled static website, disabled delete-retention.
func defaultService(account string) *Service {
	return &Service{
		AccountName:           account,
		CORS:                  NewJSONColumn([]CORSRule(nil)),
		Logging:               NewJSONColumn((*LoggingProperties)(nil)),
		HourMetrics:           NewJSONColumn((*MetricsProperties)(nil)),
		MinuteMetrics:         NewJSONColumn((*MetricsProperties)(nil)),
		StaticWebsite:         NewJSONColumn((*StaticWebsiteProperties)(nil)),
		DeleteRetentionPolicy: NewJSONColumn((*DeleteRetentionPolicy)(nil)),
	}
}

// GetServiceProperties implements spec §3/SPEC_FULL.md §C getServiceProperties:
// read the one-per-account Services row, or synthesize and return a
// default (not persisted) document if the account has never set one.
func (s *Store) GetServiceProperties(requestID, account string) (*Service, error) {
	var out *Service
	err := s.withTx(requestID, func(t *txn) error {
		var svc Service
		err := t.tx.Where("account_name = ?", account).Take(&svc).Error
		switch err {
		case nil:
			out = &svc
			return nil
		case gorm.ErrRecordNotFound:
			out = defaultService(account)
			return nil
		default:
			return err
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetServiceProperties implements spec §3 setServiceProperties: replaces
// the account's entire Services document (Azure's Set Blob Service
// Properties is whole-document, not a per-field patch), creating the row
// on first use.
func (s *Store) SetServiceProperties(requestID, account string, cors []CORSRule, logging *LoggingProperties, hourMetrics, minuteMetrics *MetricsProperties, staticWebsite *StaticWebsiteProperties, deleteRetention *DeleteRetentionPolicy) (*Service, error) {
	svc := &Service{
		AccountName:           account,
		CORS:                  NewJSONColumn(cors),
		Logging:               NewJSONColumn(logging),
		HourMetrics:           NewJSONColumn(hourMetrics),
		MinuteMetrics:         NewJSONColumn(minuteMetrics),
		StaticWebsite:         NewJSONColumn(staticWebsite),
		DeleteRetentionPolicy: NewJSONColumn(deleteRetention),
	}
	err := s.withTx(requestID, func(t *txn) error {
		var existing Service
		err := t.tx.Where("account_name = ?", account).Take(&existing).Error
		switch err {
		case nil:
			return t.tx.Model(&existing).Select(
				"CORS", "Logging", "HourMetrics", "MinuteMetrics", "StaticWebsite", "DeleteRetentionPolicy",
			).Updates(svc).Error
		case gorm.ErrRecordNotFound:
			return t.tx.Create(svc).Error
		default:
			return err
		}
	})
	if err != nil {
		return nil, err
	}
	return svc, nil
}

// MatchServiceCORS wires spec §9's CORS preflight matcher (cors.go) to the
// account's persisted Service properties: it is the one call path that
// reads Service.CORS back out of the store and feeds it to MatchCORS.
func (s *Store) MatchServiceCORS(requestID, account string, req PreflightRequest) (CORSRule, bool, error) {
	svc, err := s.GetServiceProperties(requestID, account)
	if err != nil {
		return CORSRule{}, false, err
	}
	rule, ok := MatchCORS(svc.CORS.Val, req)
	return rule, ok, nil
}
