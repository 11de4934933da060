// Package athena implements query.Service on Amazon Athena (aws-sdk-go v1).
package athena

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/athena"
	"github.com/aws/aws-sdk-go/service/athena/athenaiface"
	"github.com/pkg/errors"

	"telemetry/internal/query"
)

// Service submits statements to Athena.
type Service struct {
	client    athenaiface.AthenaAPI
	catalog   string
	workgroup string
}

// New returns a service. catalog and workgroup are optional; empty values use
// the account defaults.
func New(client athenaiface.AthenaAPI, catalog, workgroup string) *Service {
	return &Service{client: client, catalog: catalog, workgroup: workgroup}
}

func (s *Service) StartQueryExecution(ctx context.Context, sql, database, outputLocation string) (string, error) {
	in := &athena.StartQueryExecutionInput{
		QueryString:           aws.String(sql),
		QueryExecutionContext: &athena.QueryExecutionContext{Database: aws.String(database)},
	}
	if s.catalog != "" {
		in.QueryExecutionContext.Catalog = aws.String(s.catalog)
	}
	if outputLocation != "" {
		in.ResultConfiguration = &athena.ResultConfiguration{OutputLocation: aws.String(outputLocation)}
	}
	if s.workgroup != "" {
		in.WorkGroup = aws.String(s.workgroup)
	}
	out, err := s.client.StartQueryExecutionWithContext(ctx, in)
	if err != nil {
		return "", errors.Wrap(err, "starting athena query")
	}
	return aws.StringValue(out.QueryExecutionId), nil
}

func (s *Service) GetQueryExecution(ctx context.Context, id string) (query.Execution, error) {
	out, err := s.client.GetQueryExecutionWithContext(ctx, &athena.GetQueryExecutionInput{
		QueryExecutionId: aws.String(id),
	})
	if err != nil {
		return query.Execution{}, errors.Wrapf(err, "getting athena query %s", id)
	}
	exec := query.Execution{ID: id}
	if qe := out.QueryExecution; qe != nil && qe.Status != nil {
		exec.State = query.State(aws.StringValue(qe.Status.State))
		exec.Reason = aws.StringValue(qe.Status.StateChangeReason)
	}
	return exec, nil
}

func (s *Service) StopQueryExecution(ctx context.Context, id string) error {
	_, err := s.client.StopQueryExecutionWithContext(ctx, &athena.StopQueryExecutionInput{
		QueryExecutionId: aws.String(id),
	})
	return errors.Wrapf(err, "stopping athena query %s", id)
}
