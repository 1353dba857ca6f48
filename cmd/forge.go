package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/forge-interview/internal/interview"
	"github.com/sells-group/forge-interview/internal/model"
)

var forgeCmd = &cobra.Command{
	Use:   "forge",
	Short: "Manage interview forges",
}

var (
	forgeExpert   string
	forgeDomain   string
	forgeAudience string
	forgeDepth    string
)

var forgeCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new forge",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("forge"); err != nil {
			return err
		}
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		forge, err := env.Store.CreateForge(cmd.Context(), model.Forge{
			ExpertName:     forgeExpert,
			Domain:         forgeDomain,
			TargetAudience: forgeAudience,
			Depth:          forgeDepth,
			Status:         model.ForgeStatusDraft,
		})
		if err != nil {
			return err
		}

		zap.L().Info("forge created", zap.String("forge_id", forge.ID))
		fmt.Println(forge.ID)
		return nil
	},
}

var forgePlanTemplate string

var forgePlanCmd = &cobra.Command{
	Use:   "plan <forge-id>",
	Short: "Plan the next interview round",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("forge"); err != nil {
			return err
		}
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		var sections []model.Section
		if forgePlanTemplate != "" {
			tpl, err := interview.LoadPlanTemplate(forgePlanTemplate)
			if err != nil {
				return err
			}
			sections, err = env.Engine.ImportRound(cmd.Context(), args[0], tpl)
			if err != nil {
				return err
			}
		} else {
			sections, err = env.Engine.PlanRound(cmd.Context(), args[0])
			if err != nil {
				return err
			}
		}

		for _, sec := range sections {
			fmt.Printf("Section %d: %s (%d questions)\n", sec.OrderIndex+1, sec.Title, len(sec.Questions))
		}
		return nil
	},
}

var forgeStatusCmd = &cobra.Command{
	Use:   "status <forge-id>",
	Short: "Show forge progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("forge"); err != nil {
			return err
		}
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		forge, err := env.Store.GetForge(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		sections, active, err := env.Engine.Progress(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		answered := 0
		for _, sec := range sections {
			for _, q := range sec.Questions {
				if q.Status == model.QuestionStatusAnswered {
					answered++
				}
			}
		}

		fmt.Printf("Forge %s [%s]\n", forge.ID, forge.Status)
		fmt.Printf("Expert: %s — %s\n", forge.ExpertName, forge.Domain)
		fmt.Printf("Answered: %d/%d\n", answered, model.TotalQuestions(sections))
		if active.Complete {
			fmt.Println("Round complete.")
		} else {
			fmt.Printf("Current: %s / %s\n", active.Section.Title, active.Question.Text)
		}
		return nil
	},
}

var forgeEndCmd = &cobra.Command{
	Use:   "end <forge-id>",
	Short: "End the interview early",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("forge"); err != nil {
			return err
		}
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		return env.Engine.EndEarly(cmd.Context(), args[0])
	},
}

func init() {
	forgeCreateCmd.Flags().StringVar(&forgeExpert, "expert", "", "expert name (required)")
	forgeCreateCmd.Flags().StringVar(&forgeDomain, "domain", "", "knowledge domain (required)")
	forgeCreateCmd.Flags().StringVar(&forgeAudience, "audience", "", "target audience")
	forgeCreateCmd.Flags().StringVar(&forgeDepth, "depth", "practitioner", "interview depth")
	forgeCreateCmd.MarkFlagRequired("expert")
	forgeCreateCmd.MarkFlagRequired("domain")

	forgePlanCmd.Flags().StringVar(&forgePlanTemplate, "template", "", "YAML plan template instead of generative planning")

	forgeCmd.AddCommand(forgeCreateCmd, forgePlanCmd, forgeStatusCmd, forgeEndCmd)
	rootCmd.AddCommand(forgeCmd)
}
