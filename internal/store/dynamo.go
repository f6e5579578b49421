package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/teresa-solution/lead-finance-service/internal/model"
)

// auditTimeLayout is fixed width so sort keys order by time.
const auditTimeLayout = "2006-01-02T15:04:05.000000000Z"

// DynamoAPI is the subset of *dynamodb.Client DynamoStore uses.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

type DynamoOptions struct {
	Region          string
	Endpoint        string // e.g. http://dynamodb:8000 for DynamoDB Local
	AccessKeyID     string
	SecretAccessKey string
	LeadsTable      string
	AuditTable      string
}

// ConnectDynamoDB builds a client from opts. Static credentials are used
// when given; DynamoDB Local does not validate them but the SDK needs some.
func ConnectDynamoDB(ctx context.Context, opts DynamoOptions) (*dynamodb.Client, error) {
	region := opts.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	}), nil
}

// DynamoStore keeps leads in one table and audit entries in another.
//
// Table requirements:
//   - leads: PK id (string)
//   - audit: PK lead_id (string), SK sk (string, "<created_at>#<id>")
type DynamoStore struct {
	ddb        DynamoAPI
	leadsTable string
	auditTable string
	now        func() time.Time
}

func NewDynamoStore(ddb DynamoAPI, leadsTable, auditTable string) *DynamoStore {
	if leadsTable == "" {
		leadsTable = "leads"
	}
	if auditTable == "" {
		auditTable = "audit_log"
	}
	return &DynamoStore{ddb: ddb, leadsTable: leadsTable, auditTable: auditTable, now: time.Now}
}

type leadItem struct {
	ID                  string `dynamodbav:"id"`
	Name                string `dynamodbav:"name"`
	Occasion            string `dynamodbav:"occasion,omitempty"`
	Pax                 int    `dynamodbav:"pax,omitempty"`
	EventDate           string `dynamodbav:"event_date,omitempty"`
	Source              string `dynamodbav:"source,omitempty"`
	PriceQuoteEncrypted string `dynamodbav:"price_quote_encrypted,omitempty"`
	GSTEncrypted        string `dynamodbav:"gst_encrypted,omitempty"`
	FDEncrypted         string `dynamodbav:"fd_encrypted,omitempty"`
	ADEncrypted         string `dynamodbav:"ad_encrypted,omitempty"`
	FinancialsVerified  bool   `dynamodbav:"financials_verified"`
	FinancialsUpdatedAt string `dynamodbav:"financials_updated_at,omitempty"`
	CreatedAt           string `dynamodbav:"created_at"`
	UpdatedAt           string `dynamodbav:"updated_at"`
}

type auditItem struct {
	LeadID    string `dynamodbav:"lead_id"`
	SK        string `dynamodbav:"sk"`
	ID        string `dynamodbav:"id"`
	DataHash  string `dynamodbav:"data_hash"`
	UserID    string `dynamodbav:"user_id"`
	CreatedAt string `dynamodbav:"created_at"`
}

func (s *DynamoStore) Close() error { return nil }

// PutLead writes the descriptive lead attributes. Existing financial
// attributes on the item are left untouched.
func (s *DynamoStore) PutLead(ctx context.Context, lead *model.Lead) error {
	now := s.now().UTC().Format(time.RFC3339Nano)
	expr := "SET #name = :name, #occasion = :occasion, #pax = :pax, #source = :source, #updated_at = :now, " +
		"#created_at = if_not_exists(#created_at, :now), #verified = if_not_exists(#verified, :false)"
	values := map[string]types.AttributeValue{
		":name":     &types.AttributeValueMemberS{Value: lead.Name},
		":occasion": &types.AttributeValueMemberS{Value: lead.Occasion},
		":pax":      &types.AttributeValueMemberN{Value: fmt.Sprint(lead.Pax)},
		":source":   &types.AttributeValueMemberS{Value: lead.Source},
		":now":      &types.AttributeValueMemberS{Value: now},
		":false":    &types.AttributeValueMemberBOOL{Value: false},
	}
	names := map[string]string{
		"#name":       "name",
		"#occasion":   "occasion",
		"#pax":        "pax",
		"#source":     "source",
		"#updated_at": "updated_at",
		"#created_at": "created_at",
		"#verified":   "financials_verified",
	}
	if lead.EventDate != nil {
		expr += ", #event_date = :event_date"
		values[":event_date"] = &types.AttributeValueMemberS{Value: lead.EventDate.Format(model.DateLayout)}
		names["#event_date"] = "event_date"
	}

	_, err := s.ddb.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.leadsTable),
		Key:                       leadKeyAttr(lead.ID),
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeValues: values,
		ExpressionAttributeNames:  names,
	})
	return err
}

func (s *DynamoStore) GetLead(ctx context.Context, id string) (*model.Lead, error) {
	out, err := s.ddb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.leadsTable),
		Key:            leadKeyAttr(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Item) == 0 {
		return nil, ErrLeadNotFound
	}

	var it leadItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, err
	}
	return fromLeadItem(it), nil
}

func (s *DynamoStore) SetEncryptedFinancials(ctx context.Context, leadID string, rec model.EncryptedFinancialRecord) error {
	now := s.now().UTC().Format(time.RFC3339Nano)
	return s.update(ctx, leadID,
		"SET #pq = :pq, #gst = :gst, #fd = :fd, #ad = :ad, #verified = :false, #fin_updated = :now, #updated_at = :now",
		"",
		map[string]types.AttributeValue{
			":pq":    &types.AttributeValueMemberS{Value: rec.PriceQuoteEncrypted},
			":gst":   &types.AttributeValueMemberS{Value: rec.GSTEncrypted},
			":fd":    &types.AttributeValueMemberS{Value: rec.FinalDepositEncrypted},
			":ad":    &types.AttributeValueMemberS{Value: rec.AdvanceDepositEncrypted},
			":false": &types.AttributeValueMemberBOOL{Value: false},
			":now":   &types.AttributeValueMemberS{Value: now},
		},
		map[string]string{
			"#pq":          "price_quote_encrypted",
			"#gst":         "gst_encrypted",
			"#fd":          "fd_encrypted",
			"#ad":          "ad_encrypted",
			"#verified":    "financials_verified",
			"#fin_updated": "financials_updated_at",
			"#updated_at":  "updated_at",
		})
}

// MarkFinancialsVerified is conditional on the stored price quote still
// being priceQuoteToken.
func (s *DynamoStore) MarkFinancialsVerified(ctx context.Context, leadID, priceQuoteToken string) error {
	err := s.update(ctx, leadID,
		"SET #verified = :true",
		"#pq = :expected",
		map[string]types.AttributeValue{
			":true":     &types.AttributeValueMemberBOOL{Value: true},
			":expected": &types.AttributeValueMemberS{Value: priceQuoteToken},
		},
		map[string]string{"#verified": "financials_verified", "#pq": "price_quote_encrypted"})
	if !errors.Is(err, errConditionFailed) {
		return err
	}
	if _, gerr := s.GetLead(ctx, leadID); gerr != nil {
		return gerr
	}
	return ErrFinancialsSuperseded
}

var errConditionFailed = errors.New("condition failed")

// update applies expr to an existing lead. cond, when set, is ANDed with
// the existence check and a failure of either returns errConditionFailed.
func (s *DynamoStore) update(ctx context.Context, leadID, expr, cond string, values map[string]types.AttributeValue, names map[string]string) error {
	names["#id"] = "id"
	condition := "attribute_exists(#id)"
	if cond != "" {
		condition += " AND " + cond
	}
	_, err := s.ddb.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.leadsTable),
		Key:                       leadKeyAttr(leadID),
		ConditionExpression:       aws.String(condition),
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeValues: values,
		ExpressionAttributeNames:  names,
	})
	if err != nil {
		var cfe *types.ConditionalCheckFailedException
		if errors.As(err, &cfe) {
			if cond != "" {
				return errConditionFailed
			}
			return ErrLeadNotFound
		}
		return err
	}
	return nil
}

// AppendAudit refuses to overwrite an existing entry.
func (s *DynamoStore) AppendAudit(ctx context.Context, entry *model.AuditLogEntry) error {
	createdAt := entry.CreatedAt.UTC().Format(auditTimeLayout)
	av, err := attributevalue.MarshalMap(auditItem{
		LeadID:    entry.LeadID,
		SK:        createdAt + "#" + entry.ID.String(),
		ID:        entry.ID.String(),
		DataHash:  entry.DataHash,
		UserID:    entry.UserID,
		CreatedAt: createdAt,
	})
	if err != nil {
		return err
	}

	_, err = s.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.auditTable),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(#sk)"),
		ExpressionAttributeNames: map[string]string{
			"#sk": "sk",
		},
	})
	if err != nil {
		var cfe *types.ConditionalCheckFailedException
		if errors.As(err, &cfe) {
			return fmt.Errorf("audit entry %s already exists", entry.ID)
		}
		return err
	}
	return nil
}

// ListAudit pages through the lead's partition in sort-key order, which is
// created_at order.
func (s *DynamoStore) ListAudit(ctx context.Context, leadID string) ([]model.AuditLogEntry, error) {
	entries := []model.AuditLogEntry{}
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.ddb.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.auditTable),
			KeyConditionExpression: aws.String("#lead_id = :lead_id"),
			ExpressionAttributeNames: map[string]string{
				"#lead_id": "lead_id",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":lead_id": &types.AttributeValueMemberS{Value: leadID},
			},
			ScanIndexForward:  aws.Bool(true),
			ConsistentRead:    aws.Bool(true),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, err
		}

		var items []auditItem
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
			return nil, err
		}
		for _, it := range items {
			e, err := fromAuditItem(it)
			if err != nil {
				return nil, err
			}
			entries = append(entries, e)
		}

		if len(out.LastEvaluatedKey) == 0 {
			return entries, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

func leadKeyAttr(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberS{Value: id},
	}
}

func fromLeadItem(it leadItem) *model.Lead {
	lead := &model.Lead{
		ID:       it.ID,
		Name:     it.Name,
		Occasion: it.Occasion,
		Pax:      it.Pax,
		Source:   it.Source,
	}
	lead.CreatedAt, _ = time.Parse(time.RFC3339Nano, it.CreatedAt)
	lead.UpdatedAt, _ = time.Parse(time.RFC3339Nano, it.UpdatedAt)
	if it.EventDate != "" {
		if d, err := time.Parse(model.DateLayout, it.EventDate); err == nil {
			lead.EventDate = &d
		}
	}
	if it.PriceQuoteEncrypted != "" || it.GSTEncrypted != "" || it.FDEncrypted != "" || it.ADEncrypted != "" {
		rec := &model.EncryptedFinancialRecord{
			PriceQuoteEncrypted:     it.PriceQuoteEncrypted,
			GSTEncrypted:            it.GSTEncrypted,
			FinalDepositEncrypted:   it.FDEncrypted,
			AdvanceDepositEncrypted: it.ADEncrypted,
			Verified:                it.FinancialsVerified,
		}
		rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, it.FinancialsUpdatedAt)
		lead.Financials = rec
	}
	return lead
}

func fromAuditItem(it auditItem) (model.AuditLogEntry, error) {
	id, err := uuid.Parse(it.ID)
	if err != nil {
		return model.AuditLogEntry{}, fmt.Errorf("audit item %q: %w", it.SK, err)
	}
	createdAt, err := time.Parse(auditTimeLayout, it.CreatedAt)
	if err != nil {
		return model.AuditLogEntry{}, fmt.Errorf("audit item %q: %w", it.SK, err)
	}
	return model.AuditLogEntry{
		ID:        id,
		LeadID:    it.LeadID,
		DataHash:  it.DataHash,
		UserID:    it.UserID,
		CreatedAt: createdAt,
	}, nil
}
