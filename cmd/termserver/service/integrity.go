package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/clinterm/termserver/common/branch"
	"github.com/clinterm/termserver/common/config"
	"github.com/clinterm/termserver/common/ids"
	"github.com/clinterm/termserver/common/logger"
	"github.com/clinterm/termserver/common/metrics"
	"github.com/clinterm/termserver/common/models"
	"github.com/clinterm/termserver/common/owl"
	"github.com/clinterm/termserver/common/store"
	"github.com/clinterm/termserver/common/timer"
)

// IntegrityService detects dangling references between active components
// and missing or inactive target concepts, per branch.
type IntegrityService struct {
	store        store.VersionControl
	concepts     *ConceptService
	branches     *BranchService
	descriptions DescriptionJoiner
	parser       *owl.Parser
	log          *logger.Logger

	inferredCharacteristicTypeID int64
	owlAxiomRefsetID             int64
}

// NewIntegrityService creates a new integrity service. The characteristic
// type and refset identifiers come from configuration because they are
// edition data, not constants.
func NewIntegrityService(
	versionControl store.VersionControl,
	concepts *ConceptService,
	branches *BranchService,
	descriptions DescriptionJoiner,
	parser *owl.Parser,
	terminology *config.TerminologyConfig,
	log *logger.Logger,
) *IntegrityService {
	return &IntegrityService{
		store:                        versionControl,
		concepts:                     concepts,
		branches:                     branches,
		descriptions:                 descriptions,
		parser:                       parser,
		log:                          log,
		inferredCharacteristicTypeID: terminology.InferredCharacteristicTypeID,
		owlAxiomRefsetID:             terminology.OWLAxiomRefsetID,
	}
}

// FindAllComponentsWithBadIntegrity checks every active relationship and
// axiom on the branch against the full active concept set. stated selects
// the stated slice (excluding inferred relationships) or the inferred one.
func (s *IntegrityService) FindAllComponentsWithBadIntegrity(ctx context.Context, b *branch.Branch, stated bool) (*models.IntegrityReport, error) {
	relationshipWithInactiveSource := ids.NewLongLongMap(64)
	relationshipWithInactiveType := ids.NewLongLongMap(64)
	relationshipWithInactiveDestination := ids.NewLongLongMap(64)
	axiomWithInactiveReferencedConcept := map[string]*ids.Set{}
	axiomIDReferencedComponent := map[string]int64{}

	criteria, err := s.store.BranchCriteria(ctx, b.Path)
	if err != nil {
		return nil, err
	}
	tm := timer.New("full integrity check on "+b.Path, s.log)
	defer func() {
		metrics.CheckDuration.WithLabelValues(metrics.CheckFull).Observe(tm.Finish().Seconds())
	}()

	// Fetch all active concepts; this is the authoritative universe
	activeConcepts, err := s.concepts.FindAllActiveConcepts(ctx, criteria)
	if err != nil {
		return nil, err
	}
	tm.Checkpoint(fmt.Sprintf("fetch active concepts: %d", activeConcepts.Len()))

	// Find relationships pointing to something other than the active concepts
	relationshipQuery := store.RelationshipQuery{
		Criteria:           criteria,
		Active:             store.Bool(true),
		AnyReferencedNotIn: activeConcepts,
	}
	if stated {
		relationshipQuery.NotCharacteristicTypeID = store.ID(s.inferredCharacteristicTypeID)
	} else {
		relationshipQuery.CharacteristicTypeID = store.ID(s.inferredCharacteristicTypeID)
	}
	relationshipStream, err := s.store.StreamRelationships(ctx, relationshipQuery)
	if err != nil {
		return nil, err
	}
	func() {
		defer relationshipStream.Close()
		for {
			relationship, ok := relationshipStream.Next()
			if !ok {
				break
			}
			putIfInactive(relationship.SourceID, activeConcepts, relationship.RelationshipID, relationshipWithInactiveSource)
			putIfInactive(relationship.TypeID, activeConcepts, relationship.RelationshipID, relationshipWithInactiveType)
			if !relationship.Concrete() {
				putIfInactive(relationship.DestinationID, activeConcepts, relationship.RelationshipID, relationshipWithInactiveDestination)
			}
		}
	}()
	if err := relationshipStream.Err(); err != nil {
		return nil, err
	}
	tm.Checkpoint(fmt.Sprintf("collect relationships with inactive references: %d",
		relationshipWithInactiveSource.Len()+relationshipWithInactiveType.Len()+relationshipWithInactiveDestination.Len()))

	// Find axioms pointing to something other than the active concepts,
	// using the semantic index as the prefilter. Parsing every axiom on the
	// branch is infeasible; only concepts whose indexed attributes show an
	// offending value are candidates.
	conceptIDsWithBadAxioms, err := s.collectQueryConceptIDs(ctx, store.QueryConceptQuery{
		Criteria:       criteria,
		Stated:         store.Bool(stated),
		AttrValueNotIn: activeConcepts,
	})
	if err != nil {
		return nil, err
	}

	if !conceptIDsWithBadAxioms.IsEmpty() {
		err = s.forEachAxiom(ctx, store.MemberQuery{
			Criteria:                criteria,
			Active:                  store.Bool(true),
			RefsetID:                store.ID(s.owlAxiomRefsetID),
			ReferencedComponentIDIn: conceptIDsWithBadAxioms,
		}, func(member *models.ReferenceSetMember, referenced *ids.Set) {
			badReferences := referenced.Difference(activeConcepts)
			if !badReferences.IsEmpty() {
				axiomIDReferencedComponent[member.MemberID] = member.ReferencedComponentID
				addBadReferences(axiomWithInactiveReferencedConcept, member.MemberID, badReferences)
			}
		})
		if err != nil {
			return nil, err
		}
	}
	tm.Checkpoint(fmt.Sprintf("collect axioms with inactive references: %d", len(axiomWithInactiveReferencedConcept)))

	report, err := s.assembleReport(ctx, b.Path, axiomWithInactiveReferencedConcept, axiomIDReferencedComponent,
		relationshipWithInactiveSource, relationshipWithInactiveType, relationshipWithInactiveDestination)
	if err != nil {
		return nil, err
	}
	metrics.IssuesFound.WithLabelValues(metrics.CheckFull).Add(float64(report.IssueCount()))
	return report, nil
}

// FindChangedComponentsWithBadIntegrity checks only components changed on
// the branch, in both directions: references broken by the branch's own
// concept changes, and new or changed components pointing at inactive
// concepts.
func (s *IntegrityService) FindChangedComponentsWithBadIntegrity(ctx context.Context, b *branch.Branch) (*models.IntegrityReport, error) {
	criteria, err := s.store.BranchCriteria(ctx, b.Path)
	if err != nil {
		return nil, err
	}
	return s.findChangedComponentsWithBadIntegrity(ctx, criteria, b)
}

func (s *IntegrityService) findChangedComponentsWithBadIntegrity(ctx context.Context, criteria store.BranchCriteria, b *branch.Branch) (*models.IntegrityReport, error) {
	if b.IsRoot() {
		return nil, fmt.Errorf("%w: the changed component integrity check can not be used on the root branch; use the full integrity check instead", ErrBranchMisuse)
	}

	tm := timer.New("changed component integrity check on "+b.Path, s.log)
	defer func() {
		metrics.CheckDuration.WithLabelValues(metrics.CheckChanged).Observe(tm.Finish().Seconds())
	}()

	relationshipWithInactiveSource := ids.NewLongLongMap(16)
	relationshipWithInactiveType := ids.NewLongLongMap(16)
	relationshipWithInactiveDestination := ids.NewLongLongMap(16)
	axiomWithInactiveReferencedConcept := map[string]*ids.Set{}
	axiomIDReferencedComponent := map[string]int64{}

	// Find active relationships using the concepts which have been deleted
	// or inactivated on this branch. First find those concepts.
	deletedOrInactiveConcepts, err := s.findDeletedOrInactivatedConcepts(ctx, b, criteria)
	if err != nil {
		return nil, err
	}
	tm.Checkpoint(fmt.Sprintf("collect deleted or inactive concepts: %d", deletedOrInactiveConcepts.Len()))

	// Then find the relationships with bad integrity
	badRelationshipStream, err := s.store.StreamRelationships(ctx, store.RelationshipQuery{
		Criteria:                criteria,
		Active:                  store.Bool(true),
		NotCharacteristicTypeID: store.ID(s.inferredCharacteristicTypeID),
		AnyReferencedIn:         deletedOrInactiveConcepts,
	})
	if err != nil {
		return nil, err
	}
	func() {
		defer badRelationshipStream.Close()
		for {
			relationship, ok := badRelationshipStream.Next()
			if !ok {
				break
			}
			if deletedOrInactiveConcepts.Contains(relationship.SourceID) {
				relationshipWithInactiveSource.Put(relationship.RelationshipID, relationship.SourceID)
			}
			if deletedOrInactiveConcepts.Contains(relationship.TypeID) {
				relationshipWithInactiveType.Put(relationship.RelationshipID, relationship.TypeID)
			}
			if !relationship.Concrete() && deletedOrInactiveConcepts.Contains(relationship.DestinationID) {
				relationshipWithInactiveDestination.Put(relationship.RelationshipID, relationship.DestinationID)
			}
		}
	}()
	if err := badRelationshipStream.Err(); err != nil {
		return nil, err
	}
	tm.Checkpoint(fmt.Sprintf("collect changed relationships referencing deleted or inactive concepts: %d",
		relationshipWithInactiveSource.Len()+relationshipWithInactiveType.Len()+relationshipWithInactiveDestination.Len()))

	// Then find axioms with bad integrity using the stated semantic index
	conceptIDsWithBadAxioms, err := s.collectQueryConceptIDs(ctx, store.QueryConceptQuery{
		Criteria:    criteria,
		Stated:      store.Bool(true),
		AttrValueIn: deletedOrInactiveConcepts,
	})
	if err != nil {
		return nil, err
	}
	if !conceptIDsWithBadAxioms.IsEmpty() {
		err = s.forEachAxiom(ctx, store.MemberQuery{
			Criteria:                criteria,
			Active:                  store.Bool(true),
			RefsetID:                store.ID(s.owlAxiomRefsetID),
			ReferencedComponentIDIn: conceptIDsWithBadAxioms,
		}, func(member *models.ReferenceSetMember, referenced *ids.Set) {
			badReferences := referenced.Intersection(deletedOrInactiveConcepts)
			if !badReferences.IsEmpty() {
				axiomIDReferencedComponent[member.MemberID] = member.ReferencedComponentID
				addBadReferences(axiomWithInactiveReferencedConcept, member.MemberID, badReferences)
			}
		})
		if err != nil {
			return nil, err
		}
	}

	// Gather all the concept ids used in active axioms and relationships
	// which have been changed on this branch
	changesCriteria, err := s.store.BranchCriteriaUnpromotedChanges(ctx, b.Path)
	if err != nil {
		return nil, err
	}

	conceptUsedAsSourceInRelationships := map[int64]*ids.Set{}
	conceptUsedAsTypeInRelationships := map[int64]*ids.Set{}
	conceptUsedAsDestinationInRelationships := map[int64]*ids.Set{}
	conceptUsedInAxioms := map[int64]map[string]struct{}{}

	changedRelationshipStream, err := s.store.StreamRelationships(ctx, store.RelationshipQuery{
		Criteria:                changesCriteria,
		Active:                  store.Bool(true),
		NotCharacteristicTypeID: store.ID(s.inferredCharacteristicTypeID),
	})
	if err != nil {
		return nil, err
	}
	func() {
		defer changedRelationshipStream.Close()
		for {
			relationship, ok := changedRelationshipStream.Next()
			if !ok {
				break
			}
			addConceptUse(conceptUsedAsSourceInRelationships, relationship.SourceID, relationship.RelationshipID)
			addConceptUse(conceptUsedAsTypeInRelationships, relationship.TypeID, relationship.RelationshipID)
			if !relationship.Concrete() {
				addConceptUse(conceptUsedAsDestinationInRelationships, relationship.DestinationID, relationship.RelationshipID)
			}
		}
	}()
	if err := changedRelationshipStream.Err(); err != nil {
		return nil, err
	}

	err = s.forEachAxiom(ctx, store.MemberQuery{
		Criteria: changesCriteria,
		Active:   store.Bool(true),
		RefsetID: store.ID(s.owlAxiomRefsetID),
	}, func(member *models.ReferenceSetMember, referenced *ids.Set) {
		axiomIDReferencedComponent[member.MemberID] = member.ReferencedComponentID
		referenced.ForEach(func(referencedConcept int64) {
			uses, ok := conceptUsedInAxioms[referencedConcept]
			if !ok {
				uses = map[string]struct{}{}
				conceptUsedInAxioms[referencedConcept] = uses
			}
			uses[member.MemberID] = struct{}{}
		})
	})
	if err != nil {
		return nil, err
	}

	// Of these concepts, which are active?
	conceptsRequiredActive := ids.NewSet(len(conceptUsedAsSourceInRelationships) + len(conceptUsedAsTypeInRelationships) +
		len(conceptUsedAsDestinationInRelationships) + len(conceptUsedInAxioms))
	for conceptID := range conceptUsedAsSourceInRelationships {
		conceptsRequiredActive.Add(conceptID)
	}
	for conceptID := range conceptUsedAsTypeInRelationships {
		conceptsRequiredActive.Add(conceptID)
	}
	for conceptID := range conceptUsedAsDestinationInRelationships {
		conceptsRequiredActive.Add(conceptID)
	}
	for conceptID := range conceptUsedInAxioms {
		conceptsRequiredActive.Add(conceptID)
	}
	tm.Checkpoint(fmt.Sprintf("collect concepts referenced in changed relationships and axioms: %d", conceptsRequiredActive.Len()))

	activeConcepts, err := s.findActiveConceptsAmong(ctx, criteria, conceptsRequiredActive)
	if err != nil {
		return nil, err
	}
	tm.Checkpoint(fmt.Sprintf("collect active concepts referenced in changed relationships and axioms: %d", activeConcepts.Len()))

	// Any concepts not active make the components which use them bad
	conceptsNotActive := conceptsRequiredActive.Difference(activeConcepts)
	conceptsNotActive.ForEach(func(conceptNotActive int64) {
		if uses, ok := conceptUsedAsSourceInRelationships[conceptNotActive]; ok {
			uses.ForEach(func(relationshipID int64) {
				relationshipWithInactiveSource.Put(relationshipID, conceptNotActive)
			})
		}
		if uses, ok := conceptUsedAsTypeInRelationships[conceptNotActive]; ok {
			uses.ForEach(func(relationshipID int64) {
				relationshipWithInactiveType.Put(relationshipID, conceptNotActive)
			})
		}
		if uses, ok := conceptUsedAsDestinationInRelationships[conceptNotActive]; ok {
			uses.ForEach(func(relationshipID int64) {
				relationshipWithInactiveDestination.Put(relationshipID, conceptNotActive)
			})
		}
		for axiomID := range conceptUsedInAxioms[conceptNotActive] {
			addBadReference(axiomWithInactiveReferencedConcept, axiomID, conceptNotActive)
		}
	})

	report, err := s.assembleReport(ctx, b.Path, axiomWithInactiveReferencedConcept, axiomIDReferencedComponent,
		relationshipWithInactiveSource, relationshipWithInactiveType, relationshipWithInactiveDestination)
	if err != nil {
		return nil, err
	}
	metrics.IssuesFound.WithLabelValues(metrics.CheckChanged).Add(float64(report.IssueCount()))
	return report, nil
}

// FindChangedComponentsWithBadIntegrityOnTask runs the differential check
// for a fix-task branch under an extension: only issues still present after
// the task's fix attempt are reported. When the extension baseline has
// issues and none remain on the task, the task's integrity flag is set to
// "false". When the baseline is clean, the plain changed-only check of the
// task is returned and the flag is not written.
func (s *IntegrityService) FindChangedComponentsWithBadIntegrityOnTask(ctx context.Context, taskBranch *branch.Branch, extensionMainPath string) (*models.IntegrityReport, error) {
	extensionMain, err := s.branches.FindBranchOrThrow(ctx, extensionMainPath)
	if err != nil {
		return nil, err
	}
	parentPath, ok := branch.ParentPath(taskBranch.Path)
	if !ok {
		return nil, fmt.Errorf("%w: branch %s has no parent", ErrBranchMisuse, taskBranch.Path)
	}
	projectBranch, err := s.branches.FindBranchOrThrow(ctx, parentPath)
	if err != nil {
		return nil, err
	}
	grandparentPath, _ := branch.ParentPath(projectBranch.Path)
	if !strings.EqualFold(projectBranch.Path, extensionMainPath) && !strings.EqualFold(grandparentPath, extensionMain.Path) {
		return nil, fmt.Errorf("%w: branch %s is not a descendant of %s", ErrBranchMisuse, projectBranch.Path, extensionMainPath)
	}
	// Make sure project and task are rebased
	if !strings.EqualFold(projectBranch.Path, extensionMain.Path) && projectBranch.BaseTimestamp < extensionMain.HeadTimestamp {
		return nil, fmt.Errorf("%w: branch %s needs to rebase first before running integrity check", ErrBranchMisuse, projectBranch.Path)
	}
	if taskBranch.BaseTimestamp < extensionMain.HeadTimestamp {
		return nil, fmt.Errorf("%w: branch %s needs to rebase first before running integrity check", ErrBranchMisuse, taskBranch.Path)
	}

	tm := timer.New("changed component integrity check on "+taskBranch.Path+" and "+extensionMainPath, s.log)
	defer func() {
		metrics.CheckDuration.WithLabelValues(metrics.CheckTask).Observe(tm.Finish().Seconds())
	}()

	baselineReport, err := s.FindChangedComponentsWithBadIntegrity(ctx, extensionMain)
	if err != nil {
		return nil, err
	}
	if baselineReport.IsEmpty() {
		s.log.Info("no integrity issue found", "branch", extensionMainPath)
		return s.FindChangedComponentsWithBadIntegrity(ctx, taskBranch)
	}

	relationshipIDsWithBadIntegrity := ids.NewSet(16)
	for relationshipID := range baselineReport.RelationshipsWithMissingOrInactiveSource {
		relationshipIDsWithBadIntegrity.Add(relationshipID)
	}
	for relationshipID := range baselineReport.RelationshipsWithMissingOrInactiveType {
		relationshipIDsWithBadIntegrity.Add(relationshipID)
	}
	for relationshipID := range baselineReport.RelationshipsWithMissingOrInactiveDestination {
		relationshipIDsWithBadIntegrity.Add(relationshipID)
	}
	axiomsWithBadIntegrity := make([]string, 0, len(baselineReport.AxiomsWithMissingOrInactiveReferencedConcept))
	for axiomID := range baselineReport.AxiomsWithMissingOrInactiveReferencedConcept {
		axiomsWithBadIntegrity = append(axiomsWithBadIntegrity, axiomID)
	}
	s.log.Info("baseline integrity issues found",
		"branch", extensionMainPath,
		"relationships", relationshipIDsWithBadIntegrity.Len(),
		"axioms", len(axiomsWithBadIntegrity),
	)
	tm.Checkpoint("integrity check completed on " + extensionMainPath)

	// Fetch source, type and destination in the fix task for the
	// relationships reported on the extension
	taskCriteria, err := s.store.BranchCriteria(ctx, taskBranch.Path)
	if err != nil {
		return nil, err
	}
	relationshipIDToSource := ids.NewLongLongMap(relationshipIDsWithBadIntegrity.Len())
	relationshipIDToType := ids.NewLongLongMap(relationshipIDsWithBadIntegrity.Len())
	relationshipIDToDestination := ids.NewLongLongMap(relationshipIDsWithBadIntegrity.Len())
	taskRelationshipStream, err := s.store.StreamRelationships(ctx, store.RelationshipQuery{
		Criteria:                taskCriteria,
		Active:                  store.Bool(true),
		NotCharacteristicTypeID: store.ID(s.inferredCharacteristicTypeID),
		RelationshipIDIn:        relationshipIDsWithBadIntegrity,
	})
	if err != nil {
		return nil, err
	}
	func() {
		defer taskRelationshipStream.Close()
		for {
			relationship, ok := taskRelationshipStream.Next()
			if !ok {
				break
			}
			relationshipIDToSource.Put(relationship.RelationshipID, relationship.SourceID)
			relationshipIDToType.Put(relationship.RelationshipID, relationship.TypeID)
			if !relationship.Concrete() {
				relationshipIDToDestination.Put(relationship.RelationshipID, relationship.DestinationID)
			}
		}
	}()
	if err := taskRelationshipStream.Err(); err != nil {
		return nil, err
	}

	// Fetch concepts referenced by the axioms reported on the extension
	conceptUsedInAxioms := map[int64]map[string]struct{}{}
	axiomIDReferencedComponent := map[string]int64{}
	err = s.forEachAxiom(ctx, store.MemberQuery{
		Criteria:   taskCriteria,
		Active:     store.Bool(true),
		RefsetID:   store.ID(s.owlAxiomRefsetID),
		MemberIDIn: axiomsWithBadIntegrity,
	}, func(member *models.ReferenceSetMember, referenced *ids.Set) {
		axiomIDReferencedComponent[member.MemberID] = member.ReferencedComponentID
		referenced.ForEach(func(referencedConcept int64) {
			uses, ok := conceptUsedInAxioms[referencedConcept]
			if !ok {
				uses = map[string]struct{}{}
				conceptUsedInAxioms[referencedConcept] = uses
			}
			uses[member.MemberID] = struct{}{}
		})
	})
	if err != nil {
		return nil, err
	}

	conceptIDsToCheck := ids.NewSet(64)
	for conceptID := range conceptUsedInAxioms {
		conceptIDsToCheck.Add(conceptID)
	}
	relationshipIDToSource.ForEach(func(_, conceptID int64) { conceptIDsToCheck.Add(conceptID) })
	relationshipIDToType.ForEach(func(_, conceptID int64) { conceptIDsToCheck.Add(conceptID) })
	relationshipIDToDestination.ForEach(func(_, conceptID int64) { conceptIDsToCheck.Add(conceptID) })

	activeConcepts, err := s.findActiveConceptsAmong(ctx, taskCriteria, conceptIDsToCheck)
	if err != nil {
		return nil, err
	}
	tm.Checkpoint(fmt.Sprintf("collect active concepts referenced in reported relationships and axioms: %d on %s",
		activeConcepts.Len(), taskBranch.Path))

	// Check axioms still with bad integrity
	axiomWithInactiveReferencedConcept := map[string]*ids.Set{}
	for referencedConcept, axiomIDs := range conceptUsedInAxioms {
		if !activeConcepts.Contains(referencedConcept) {
			for axiomID := range axiomIDs {
				addBadReference(axiomWithInactiveReferencedConcept, axiomID, referencedConcept)
			}
		}
	}
	s.log.Info("axioms still with inactive referenced concepts", "count", len(axiomWithInactiveReferencedConcept))

	// Check relationships still with bad integrity, per direction
	relationshipStillWithInactiveSource := ids.NewLongLongMap(16)
	relationshipStillWithInactiveType := ids.NewLongLongMap(16)
	relationshipStillWithInactiveDestination := ids.NewLongLongMap(16)
	relationshipIDToSource.ForEach(func(relationshipID, conceptID int64) {
		if !activeConcepts.Contains(conceptID) {
			relationshipStillWithInactiveSource.Put(relationshipID, conceptID)
		}
	})
	relationshipIDToType.ForEach(func(relationshipID, conceptID int64) {
		if !activeConcepts.Contains(conceptID) {
			relationshipStillWithInactiveType.Put(relationshipID, conceptID)
		}
	})
	relationshipIDToDestination.ForEach(func(relationshipID, conceptID int64) {
		if !activeConcepts.Contains(conceptID) {
			relationshipStillWithInactiveDestination.Put(relationshipID, conceptID)
		}
	})

	fixedReport, err := s.assembleReport(ctx, taskBranch.Path, axiomWithInactiveReferencedConcept, axiomIDReferencedComponent,
		relationshipStillWithInactiveSource, relationshipStillWithInactiveType, relationshipStillWithInactiveDestination)
	if err != nil {
		return nil, err
	}
	metrics.IssuesFound.WithLabelValues(metrics.CheckTask).Add(float64(fixedReport.IssueCount()))

	if fixedReport.IsEmpty() {
		// Record the fix on the task branch
		taskBranch.SetInternalValue(branch.IntegrityIssueMetadataKey, "false")
		if err := s.branches.UpdateMetadata(ctx, taskBranch.Path, taskBranch.Metadata); err != nil {
			return nil, err
		}
		s.log.Info("integrity issues have been fixed", "branch", taskBranch.Path)
	}
	return fixedReport, nil
}

// FindExtraConceptsInSemanticIndex reports semantic index entries whose
// concept is not in the branch's active set. Purely diagnostic.
func (s *IntegrityService) FindExtraConceptsInSemanticIndex(ctx context.Context, branchPath string) (*models.SemanticIndexOrphans, error) {
	tm := timer.New("semantic index orphan check on "+branchPath, s.log)

	criteria, err := s.store.BranchCriteria(ctx, branchPath)
	if err != nil {
		return nil, err
	}
	activeConcepts, err := s.concepts.FindAllActiveConcepts(ctx, criteria)
	if err != nil {
		return nil, err
	}
	tm.Checkpoint(fmt.Sprintf("fetch active concepts: %d", activeConcepts.Len()))

	orphans := &models.SemanticIndexOrphans{
		StatedConceptIDs:   []int64{},
		InferredConceptIDs: []int64{},
	}
	stream, err := s.store.StreamQueryConcepts(ctx, store.QueryConceptQuery{
		Criteria:       criteria,
		ConceptIDNotIn: activeConcepts,
	})
	if err != nil {
		return nil, err
	}
	func() {
		defer stream.Close()
		for {
			entry, ok := stream.Next()
			if !ok {
				break
			}
			if entry.Stated {
				orphans.StatedConceptIDs = append(orphans.StatedConceptIDs, entry.ConceptIDL)
			} else {
				orphans.InferredConceptIDs = append(orphans.InferredConceptIDs, entry.ConceptIDL)
			}
		}
	}()
	if err := stream.Err(); err != nil {
		return nil, err
	}
	tm.Checkpoint("check whole semantic index for branch")
	tm.Finish()

	if !orphans.IsEmpty() {
		s.log.Error("found semantic index entries for concepts which should not be there",
			"branch", branchPath,
			"stated", len(orphans.StatedConceptIDs),
			"inferred", len(orphans.InferredConceptIDs),
		)
	} else {
		s.log.Info("semantic index clean", "branch", branchPath)
	}
	return orphans, nil
}

// findDeletedOrInactivatedConcepts returns concepts changed or deleted on
// the branch which are no longer visible and active there
func (s *IntegrityService) findDeletedOrInactivatedConcepts(ctx context.Context, b *branch.Branch, criteria store.BranchCriteria) (*ids.Set, error) {
	// Find concepts changed or deleted on this branch
	changesCriteria, err := s.store.BranchCriteriaUnpromotedChangesAndDeletions(ctx, b.Path)
	if err != nil {
		return nil, err
	}
	changedStream, err := s.store.StreamConcepts(ctx, store.ConceptQuery{
		Criteria: changesCriteria,
		IDOnly:   true,
	})
	if err != nil {
		return nil, err
	}
	changedOrDeletedConcepts, err := store.CollectConceptIDs(changedStream)
	if err != nil {
		return nil, err
	}
	s.log.Info("concepts changed or deleted on branch", "branch", b.Path, "count", changedOrDeletedConcepts.Len())

	// Of these concepts, which are currently present and active?
	changedAndActiveConcepts, err := s.findActiveConceptsAmong(ctx, criteria, changedOrDeletedConcepts)
	if err != nil {
		return nil, err
	}
	s.log.Info("concepts changed, currently present and active on branch", "branch", b.Path, "count", changedAndActiveConcepts.Len())

	// Therefore the deleted or inactive concepts are:
	deletedOrInactiveConcepts := changedOrDeletedConcepts.Difference(changedAndActiveConcepts)
	s.log.Info("concepts deleted or inactive on branch", "branch", b.Path, "count", deletedOrInactiveConcepts.Len())
	return deletedOrInactiveConcepts, nil
}

// findActiveConceptsAmong returns the subset of candidates visible and
// active under the criteria
func (s *IntegrityService) findActiveConceptsAmong(ctx context.Context, criteria store.BranchCriteria, candidates *ids.Set) (*ids.Set, error) {
	stream, err := s.store.StreamConcepts(ctx, store.ConceptQuery{
		Criteria:    criteria,
		Active:      store.Bool(true),
		ConceptIDIn: candidates,
		IDOnly:      true,
	})
	if err != nil {
		return nil, err
	}
	return store.CollectConceptIDs(stream)
}

// collectQueryConceptIDs drains a semantic index stream into a concept set
func (s *IntegrityService) collectQueryConceptIDs(ctx context.Context, query store.QueryConceptQuery) (*ids.Set, error) {
	stream, err := s.store.StreamQueryConcepts(ctx, query)
	if err != nil {
		return nil, err
	}
	defer stream.Close()
	set := ids.NewSet(store.LargePageSize)
	for {
		entry, ok := stream.Next()
		if !ok {
			break
		}
		set.Add(entry.ConceptIDL)
	}
	return set, stream.Err()
}

// forEachAxiom streams axiom members, parses each OWL expression and hands
// the member plus its referenced concept set to fn
func (s *IntegrityService) forEachAxiom(ctx context.Context, query store.MemberQuery, fn func(member *models.ReferenceSetMember, referenced *ids.Set)) error {
	stream, err := s.store.StreamReferenceSetMembers(ctx, query)
	if err != nil {
		return err
	}
	defer stream.Close()
	for {
		member, ok := stream.Next()
		if !ok {
			break
		}
		referenced, err := s.parser.ReferencedConcepts(member.OWLExpression())
		if err != nil {
			return fmt.Errorf("failed to deserialise axiom %s during reference integrity check: %w", member.MemberID, err)
		}
		fn(member, referenced)
	}
	return stream.Err()
}

// assembleReport builds the caller-owned report and joins display terms
// onto the axiom subject descriptors
func (s *IntegrityService) assembleReport(
	ctx context.Context,
	branchPath string,
	axiomWithInactiveReferencedConcept map[string]*ids.Set,
	axiomIDReferencedComponent map[string]int64,
	relationshipWithInactiveSource, relationshipWithInactiveType, relationshipWithInactiveDestination *ids.LongLongMap,
) (*models.IntegrityReport, error) {

	report := &models.IntegrityReport{}

	if len(axiomWithInactiveReferencedConcept) > 0 {
		axiomMinis := make(map[string]*models.ConceptMini, len(axiomWithInactiveReferencedConcept))
		conceptMiniMap := map[int64]*models.ConceptMini{}
		for axiomID, badReferences := range axiomWithInactiveReferencedConcept {
			referencedComponentID := axiomIDReferencedComponent[axiomID]
			if _, ok := conceptMiniMap[referencedComponentID]; !ok {
				conceptMiniMap[referencedComponentID] = &models.ConceptMini{ConceptID: referencedComponentID}
			}
			// One descriptor per axiom, so each carries only its own offending set
			mini := &models.ConceptMini{ConceptID: referencedComponentID}
			badReferences.ForEach(mini.AddMissingOrInactive)
			axiomMinis[axiomID] = mini
		}
		// Join descriptions so FSN and PT are returned
		if err := s.descriptions.JoinActiveDescriptions(ctx, branchPath, conceptMiniMap); err != nil {
			return nil, err
		}
		for _, mini := range axiomMinis {
			joined := conceptMiniMap[mini.ConceptID]
			mini.FSN, mini.PT = joined.FSN, joined.PT
		}
		report.AxiomsWithMissingOrInactiveReferencedConcept = axiomMinis
	}

	if !relationshipWithInactiveSource.IsEmpty() {
		report.RelationshipsWithMissingOrInactiveSource = toPlainMap(relationshipWithInactiveSource)
	}
	if !relationshipWithInactiveType.IsEmpty() {
		report.RelationshipsWithMissingOrInactiveType = toPlainMap(relationshipWithInactiveType)
	}
	if !relationshipWithInactiveDestination.IsEmpty() {
		report.RelationshipsWithMissingOrInactiveDestination = toPlainMap(relationshipWithInactiveDestination)
	}
	return report, nil
}

func toPlainMap(m *ids.LongLongMap) map[int64]int64 {
	out := make(map[int64]int64, m.Len())
	m.ForEach(func(k, v int64) {
		out[k] = v
	})
	return out
}

func putIfInactive(conceptID int64, activeConcepts *ids.Set, relationshipID int64, target *ids.LongLongMap) {
	if !activeConcepts.Contains(conceptID) {
		target.Put(relationshipID, conceptID)
	}
}

func addConceptUse(target map[int64]*ids.Set, conceptID, relationshipID int64) {
	uses, ok := target[conceptID]
	if !ok {
		uses = ids.NewSet(4)
		target[conceptID] = uses
	}
	uses.Add(relationshipID)
}

func addBadReference(target map[string]*ids.Set, axiomID string, conceptID int64) {
	bad, ok := target[axiomID]
	if !ok {
		bad = ids.NewSet(4)
		target[axiomID] = bad
	}
	bad.Add(conceptID)
}

func addBadReferences(target map[string]*ids.Set, axiomID string, references *ids.Set) {
	bad, ok := target[axiomID]
	if !ok {
		bad = ids.NewSet(references.Len())
		target[axiomID] = bad
	}
	bad.AddAll(references)
}
